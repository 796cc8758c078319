package eval

// Predefined operation numbers. The low numbers are the bytecode
// interpreter's instruction set; every primitive function and form also
// carries one of these numbers, which is both its slot in the dispatch
// table and the opcode the compiler emits to invoke it. All numbers fit
// in one byte so compiled operands stay one byte wide.

const numFuncs = 150

const (
	// bytecode instructions
	OpNoOp        byte = 0
	OpCollectArgs byte = 1
	OpPushConst   byte = 2
	OpPushVar     byte = 3
	OpReturn      byte = 4
	OpNilBranch   byte = 5
	OpBranch      byte = 6
	OpPopVal      byte = 7
	OpMakeClosure byte = 8
	OpPushMark    byte = 9
	OpCall        byte = 10
	OpPushFunc    byte = 11

	// special forms
	opDefine byte = 20
	opSet    byte = 21
	opLambda byte = 22
	opQuote  byte = 23
	opIf     byte = 24
	opOr     byte = 25
	opAnd    byte = 26
	opBegin  byte = 27
	opMacro  byte = 28
	opExpand byte = 29

	// interpreter directives
	opEnv     byte = 35
	opTorture byte = 36
	opEvDebug byte = 37
	opGcDebug byte = 38
	opExit    byte = 39

	// primitive list operations
	opCar    byte = 40
	opCdr    byte = 41
	opCons   byte = 42
	opSetCar byte = 43
	opSetCdr byte = 44

	// predicates
	opNull    byte = 45
	opAtom    byte = 46
	opPair    byte = 47
	opSymbol  byte = 48
	opNumber  byte = 49
	opInteger byte = 50
	opFloat   byte = 51
	opZero    byte = 52

	// equality
	opEq    byte = 53
	opEqv   byte = 54
	opEqual byte = 55

	// arithmetic
	opPlus  byte = 56
	opMinus byte = 57
	opMult  byte = 58
	opDiv   byte = 59
	opAbs   byte = 60
	opLT    byte = 61
	opGT    byte = 62
	opLTE   byte = 63
	opGTE   byte = 64
	opNumE  byte = 65
	opNumNE byte = 66

	// higher-level list operations
	opAssoc    byte = 67
	opAssq     byte = 68
	opAssv     byte = 69
	opMember   byte = 70
	opMemq     byte = 71
	opMemv     byte = 72
	opList     byte = 73
	opLength   byte = 74
	opAppend   byte = 75
	opRev      byte = 76
	opTreeCopy byte = 77

	// control
	opEval      byte = 78
	opApply     byte = 79
	opCallCC    byte = 80
	opProcedure byte = 81

	// booleans
	opBoolean byte = 83
	opNot     byte = 84

	// characters
	opChar    byte = 85
	opCharE   byte = 86
	opCharL   byte = 87
	opCharG   byte = 88
	opCharLE  byte = 89
	opCharGE  byte = 90
	opCharInt byte = 91
	opIntChar byte = 92

	// strings
	opString byte = 93
	opStrLen byte = 94
	opStrRef byte = 95
	opStrE   byte = 96
	opStrL   byte = 97
	opStrG   byte = 98
	opStrLE  byte = 99
	opStrGE  byte = 100
	opSubStr byte = 101
	opStrLst byte = 102
	opLstStr byte = 103
	opSymStr byte = 104
	opStrSym byte = 105
	opStrApp byte = 106

	// I/O
	opRead        byte = 107
	opWrite       byte = 108
	opReadChar    byte = 109
	opWriteChar   byte = 110
	opEofObj      byte = 111
	opDisplay     byte = 112
	opNewLine     byte = 113
	opInPort      byte = 114
	opOutPort     byte = 115
	opCurrIn      byte = 116
	opCurrOut     byte = 117
	opOpenInFile  byte = 118
	opOpenOutFile byte = 119
	opLoad        byte = 120

	opError  byte = 121
	opGenSym byte = 122

	opCompile byte = 123
	opChdir   byte = 124
	opClose   byte = 125

	// vectors
	opVector     byte = 126
	opArgVector  byte = 127
	opMakeVector byte = 128
	opVectLength byte = 129
	opVectRef    byte = 130
	opVectSet    byte = 131
	opVectCopy   byte = 132
	opVectFill   byte = 133
	opVectLst    byte = 134
	opLstVect    byte = 135

	// environment persistence
	opDumpEnv byte = 136
	opRestEnv byte = 137

	// numeric predicates and extrema
	opPositive byte = 138
	opNegative byte = 139
	opOdd      byte = 140
	opEven     byte = 141
	opMin      byte = 142
	opMax      byte = 143

	// composed accessors
	opCaar  byte = 144
	opCadr  byte = 145
	opCdar  byte = 146
	opCddr  byte = 147
	opCaddr byte = 148
	opCdddr byte = 149
)
