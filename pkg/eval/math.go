package eval

import "gscheme/pkg/cell"

// Arithmetic. Integers and floats coerce pairwise: mixing an int into a
// float computation floats the result. Overflow is not trapped; division
// by zero is.

// number carries an int-or-float operand through a fold.
type number struct {
	isFloat bool
	i       int64
	f       float64
}

func (m *Machine) number(c *cell.Cell, who string) (number, error) {
	switch c.Kind() {
	case cell.Int:
		return number{i: c.Int()}, nil
	case cell.Float:
		return number{isFloat: true, f: c.Float()}, nil
	}
	return number{}, m.errorf("%s requires numbers", who)
}

func (n number) float() float64 {
	if n.isFloat {
		return n.f
	}
	return float64(n.i)
}

func (n number) zero() bool {
	if n.isFloat {
		return n.f == 0
	}
	return n.i == 0
}

func (m *Machine) pushNumber(n number) error {
	if n.isFloat {
		return m.pushVal(m.H.Float(n.f))
	}
	return m.pushVal(m.H.Int(n.i))
}

// popNumbers gathers a variadic primitive's arguments in order.
func (m *Machine) popNumbers(who string) ([]number, error) {
	lst, err := m.gatherVal()
	if err != nil {
		return nil, err
	}
	var nums []number
	for c := lst; c.IsPair(); c = c.Cdr() {
		n, err := m.number(c.Car(), who)
		if err != nil {
			return nil, err
		}
		nums = append(nums, n)
	}
	return nums, nil
}

func fold(a, b number, ints func(int64, int64) int64, floats func(float64, float64) float64) number {
	if a.isFloat || b.isFloat {
		return number{isFloat: true, f: floats(a.float(), b.float())}
	}
	return number{i: ints(a.i, b.i)}
}

// (+ n ...). The empty sum is 0.
func (m *Machine) opPlus() error {
	nums, err := m.popNumbers("+")
	if err != nil {
		return err
	}
	acc := number{}
	for _, n := range nums {
		acc = fold(acc, n,
			func(a, b int64) int64 { return a + b },
			func(a, b float64) float64 { return a + b })
	}
	return m.pushNumber(acc)
}

// (* n ...). The empty product is 1.
func (m *Machine) opMult() error {
	nums, err := m.popNumbers("*")
	if err != nil {
		return err
	}
	acc := number{i: 1}
	for _, n := range nums {
		acc = fold(acc, n,
			func(a, b int64) int64 { return a * b },
			func(a, b float64) float64 { return a * b })
	}
	return m.pushNumber(acc)
}

// (- n ...). One argument negates; none is 0.
func (m *Machine) opMinus() error {
	nums, err := m.popNumbers("-")
	if err != nil {
		return err
	}
	if len(nums) == 0 {
		return m.pushNumber(number{})
	}
	if len(nums) == 1 {
		n := nums[0]
		if n.isFloat {
			n.f = -n.f
		} else {
			n.i = -n.i
		}
		return m.pushNumber(n)
	}

	acc := nums[0]
	for _, n := range nums[1:] {
		acc = fold(acc, n,
			func(a, b int64) int64 { return a - b },
			func(a, b float64) float64 { return a - b })
	}
	return m.pushNumber(acc)
}

// (/ n ...). One argument gives its reciprocal as a float; division by
// zero is trapped.
func (m *Machine) opDiv() error {
	nums, err := m.popNumbers("/")
	if err != nil {
		return err
	}
	if len(nums) == 0 {
		return m.errorf("/ requires numbers")
	}
	if nums[0].zero() && len(nums) == 1 {
		return m.errorf("division by zero")
	}
	if len(nums) == 1 {
		return m.pushNumber(number{isFloat: true, f: 1 / nums[0].float()})
	}

	acc := nums[0]
	for _, n := range nums[1:] {
		if n.zero() {
			return m.errorf("division by zero")
		}
		acc = fold(acc, n,
			func(a, b int64) int64 { return a / b },
			func(a, b float64) float64 { return a / b })
	}
	return m.pushNumber(acc)
}

// (ABS n)
func (m *Machine) opAbs() error {
	c, err := m.popVal()
	if err != nil {
		return err
	}
	n, err := m.number(c, "ABS")
	if err != nil {
		return err
	}
	if n.isFloat && n.f < 0 {
		n.f = -n.f
	}
	if !n.isFloat && n.i < 0 {
		n.i = -n.i
	}
	return m.pushNumber(n)
}

// popTwoNumbers pops a binary comparison's operands; the second argument
// is on top.
func (m *Machine) popTwoNumbers(who string) (number, number, error) {
	c2, err := m.popVal()
	if err != nil {
		return number{}, number{}, err
	}
	c1, err := m.popVal()
	if err != nil {
		return number{}, number{}, err
	}
	n1, err := m.number(c1, who)
	if err != nil {
		return number{}, number{}, err
	}
	n2, err := m.number(c2, who)
	return n1, n2, err
}

func (m *Machine) compare(who string, ints func(int64, int64) bool, floats func(float64, float64) bool) error {
	a, b, err := m.popTwoNumbers(who)
	if err != nil {
		return err
	}
	var r bool
	if a.isFloat || b.isFloat {
		r = floats(a.float(), b.float())
	} else {
		r = ints(a.i, b.i)
	}
	return m.pushVal(m.H.Bool(r))
}

func (m *Machine) opLT() error {
	return m.compare("<",
		func(a, b int64) bool { return a < b },
		func(a, b float64) bool { return a < b })
}

func (m *Machine) opGT() error {
	return m.compare(">",
		func(a, b int64) bool { return a > b },
		func(a, b float64) bool { return a > b })
}

func (m *Machine) opLTE() error {
	return m.compare("<=",
		func(a, b int64) bool { return a <= b },
		func(a, b float64) bool { return a <= b })
}

func (m *Machine) opGTE() error {
	return m.compare(">=",
		func(a, b int64) bool { return a >= b },
		func(a, b float64) bool { return a >= b })
}

func (m *Machine) opNumE() error {
	return m.compare("=",
		func(a, b int64) bool { return a == b },
		func(a, b float64) bool { return a == b })
}

func (m *Machine) opNumNE() error {
	return m.compare("<>",
		func(a, b int64) bool { return a != b },
		func(a, b float64) bool { return a != b })
}

// (MIN n ...) and (MAX n ...)
func (m *Machine) opMin() error {
	return m.extremum("MIN", func(a, b number) bool { return a.float() < b.float() })
}

func (m *Machine) opMax() error {
	return m.extremum("MAX", func(a, b number) bool { return a.float() > b.float() })
}

func (m *Machine) extremum(who string, better func(a, b number) bool) error {
	nums, err := m.popNumbers(who)
	if err != nil {
		return err
	}
	if len(nums) == 0 {
		return m.errorf("%s requires numbers", who)
	}
	best := nums[0]
	for _, n := range nums[1:] {
		if better(n, best) {
			best = n
		}
	}
	return m.pushNumber(best)
}
