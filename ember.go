// Package ember is the embedding surface for the interpreter: construct
// an Interpreter, feed it source text, read back the result. Everything
// under internal/ is an implementation detail; this file is the only
// public API surface. There is no Go-value marshaling layer, since this
// language has no user-defined types to carry across the boundary.
package ember

import (
	"io"

	"github.com/rs/zerolog"

	"github.com/emberlang/ember/internal/vm"
)

// Result is the three-way outcome of an Interpret call.
type Result int

const (
	OK Result = iota
	CompileError
	RuntimeError
)

// ExitCode maps Result to the process exit codes an embedding CLI
// assigns: 0/65/70 for OK/compile-error/runtime-error.
func (r Result) ExitCode() int {
	switch r {
	case OK:
		return 0
	case CompileError:
		return 65
	case RuntimeError:
		return 70
	default:
		return 70
	}
}

func (r Result) String() string {
	switch r {
	case OK:
		return "OK"
	case CompileError:
		return "CompileError"
	case RuntimeError:
		return "RuntimeError"
	default:
		return "Unknown"
	}
}

// Options configures an Interpreter's I/O and diagnostics.
type Options struct {
	// Stdout receives PRINT output. Defaults to os.Stdout.
	Stdout io.Writer
	// Stderr receives compile and runtime diagnostics. Defaults to os.Stderr.
	Stderr io.Writer
	// Logger, if set, receives structured trace-level instruction dispatch
	// logs and an error-level event for each runtime error; compile errors
	// go to Stderr only. Nil disables tracing.
	Logger *zerolog.Logger
}

// Interpreter holds the persistent VM state (globals, interned strings,
// object heap) across repeated Interpret calls, letting a caller run
// several top-level scripts against one shared environment.
type Interpreter struct {
	vm *vm.VM
}

// New constructs an Interpreter with fresh globals, string pool, and
// object heap.
func New(opts Options) *Interpreter {
	return &Interpreter{
		vm: vm.New(vm.Options{
			Stdout: opts.Stdout,
			Stderr: opts.Stderr,
			Logger: opts.Logger,
		}),
	}
}

// Interpret compiles and runs source against this Interpreter's
// persistent VM state. A CompileError result means diagnostics were
// already written to Stderr and no bytecode ran; a RuntimeError result
// means execution started and failed partway through, and err is the
// *vm.RuntimeError describing where and why.
func (i *Interpreter) Interpret(source string) (Result, error) {
	res, err := i.vm.Interpret(source)
	switch res {
	case vm.InterpretOK:
		return OK, nil
	case vm.InterpretCompileError:
		return CompileError, nil
	default:
		return RuntimeError, err
	}
}

// Close releases the Interpreter's globals table, string pool, and
// object heap.
func (i *Interpreter) Close() {
	i.vm.Free()
}
