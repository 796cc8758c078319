// Command gscheme is the interactive Scheme interpreter: a
// read-eval-print loop over the stack machine in pkg/eval.
//
// On startup the interpreter loads scheme.ini from the current directory
// if it exists; an error while loading it is fatal. With a file argument
// the file is loaded instead of entering the REPL.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/chzyer/readline"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"gscheme/pkg/cell"
	"gscheme/pkg/eval"
	"gscheme/pkg/lexer"
	"gscheme/pkg/reader"
)

const version = "1.2"

func main() {
	if err := rootCmd().Execute(); err != nil {
		if errors.Is(err, eval.ErrExit) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var opts eval.Options
	var silent bool

	cmd := &cobra.Command{
		Use:           "gscheme [file]",
		Short:         "A Scheme interpreter with a bytecode compiler and first-class continuations",
		Version:       version,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opts, silent, args)
		},
	}

	cmd.Flags().BoolVarP(&silent, "silent", "s", false, "skip the startup banner")
	cmd.Flags().BoolVarP(&opts.CompileDebug, "compile-debug", "c", false, "dump generated bytecode")
	cmd.Flags().BoolVarP(&opts.EvalDebug, "eval-debug", "e", false, "trace the evaluator")
	cmd.Flags().BoolVarP(&opts.GCDebug, "gc-debug", "g", false, "print garbage collection statistics")
	cmd.Flags().BoolVarP(&opts.Torture, "torture", "t", false, "collect before every allocation")
	return cmd
}

func run(opts eval.Options, silent bool, args []string) error {
	if !silent {
		banner()
	}

	m, err := eval.New(opts)
	if err != nil {
		return err
	}

	// deliver interrupts to the evaluator; it unwinds to the top level
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT)
	go func() {
		for range sig {
			m.Interrupt()
		}
	}()

	// the initialization file is optional, but an error in it is fatal
	if _, statErr := os.Stat("scheme.ini"); statErr == nil {
		if err := m.Load("scheme.ini"); err != nil {
			if errors.Is(err, eval.ErrExit) {
				return err
			}
			color.Red("Error in scheme.ini -- can't recover: %v", err)
			os.Exit(1)
		}
	}

	if len(args) == 1 {
		return m.Load(args[0])
	}
	return repl(m)
}

func banner() {
	color.New(color.Bold).Printf("gscheme %s\n", version)
	fmt.Println("A Scheme interpreter. Type (exit) to leave.")
	fmt.Println()
}

func repl(m *eval.Machine) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "[=> ",
		InterruptPrompt: "^C",
	})
	if err != nil {
		return err
	}
	defer rl.Close()

	errHeader := color.New(color.FgRed, color.Bold)

	var pending strings.Builder
	for {
		prompt := "[=> "
		if pending.Len() > 0 {
			prompt = "... "
		}
		rl.SetPrompt(prompt)

		line, err := rl.Readline()
		switch err {
		case readline.ErrInterrupt:
			pending.Reset()
			m.Reset()
			continue
		case io.EOF:
			return nil
		case nil:
		default:
			return err
		}

		pending.WriteString(line)
		pending.WriteString("\n")
		if !balanced(pending.String()) {
			continue
		}
		src := pending.String()
		pending.Reset()

		// read and evaluate one expression at a time; an expression
		// is rooted by the expression stack the moment it is read
		s := lexer.New(strings.NewReader(src))
		for {
			expr, err := reader.Read(m.H, s)
			if err != nil {
				errHeader.Fprintf(rl.Stderr(), "%v\n", err)
				m.Reset()
				break
			}
			if expr == m.H.Eof {
				break
			}

			val, err := m.EvalExpr(expr)
			if err != nil {
				if errors.Is(err, eval.ErrExit) {
					return err
				}
				if cell.IsFatal(err) {
					errHeader.Fprintf(rl.Stderr(), "fatal: %v\n", err)
					os.Exit(1)
				}
				errHeader.Fprintf(rl.Stderr(), "Error: %v\n", err)
				m.DumpStacks(rl.Stderr())
				fmt.Fprintln(rl.Stderr(), "Returning to top-level.")
				m.Reset()
				break
			}

			m.H.Write(rl.Stdout(), val)
			fmt.Fprintln(rl.Stdout())
		}
	}
}

// balanced reports whether every open paren or bracket in src has been
// closed, ignoring strings, comments, and character literals; the REPL
// keeps prompting until the expression is complete.
func balanced(src string) bool {
	depth := 0
	inString := false
	for i := 0; i < len(src); i++ {
		ch := src[i]
		if inString {
			if ch == '\\' {
				i++
			} else if ch == '"' {
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case ';':
			for i < len(src) && src[i] != '\n' {
				i++
			}
		case '\\':
			// part of a #\ character literal
			i++
		case '(', '[':
			depth++
		case ')', ']':
			depth--
		}
	}
	return depth <= 0 && !inString
}
