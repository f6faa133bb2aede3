// Package vm implements the stack-based virtual machine: a dispatch loop
// over a single Chunk, a value stack, a globals table, a
// string-interning pool, and the object heap those three share.
package vm

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/emberlang/ember/internal/chunk"
	"github.com/emberlang/ember/internal/compiler"
	"github.com/emberlang/ember/internal/table"
	"github.com/emberlang/ember/internal/value"
)

// stackMax is the stack's initial capacity; push appends, so a deeper
// stack grows past it.
const stackMax = 256

// InterpretResult is the three-way outcome of Interpret.
type InterpretResult int

const (
	InterpretOK InterpretResult = iota
	InterpretCompileError
	InterpretRuntimeError
)

// Options configures a VM. A zero Options is valid: Stdout/Stderr default
// to os.Stdout/os.Stderr. Logger is optional; nil disables tracing
// entirely.
type Options struct {
	Stdout io.Writer
	Stderr io.Writer
	Logger *zerolog.Logger
}

// VM executes one Chunk at a time. It owns the object heap and the two
// hash tables (globals, interned strings) that reference into it; both
// outlive any single Interpret call.
type VM struct {
	chunk *chunk.Chunk
	ip    int
	stack []value.Value

	globals *table.Table
	strings *table.Table
	heap    *value.Heap

	stdout io.Writer
	stderr io.Writer
	log    *zerolog.Logger
}

// New constructs a VM with empty globals, an empty string pool, and an
// empty object heap.
func New(opts Options) *VM {
	stdout, stderr := opts.Stdout, opts.Stderr
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	return &VM{
		stack:   make([]value.Value, 0, stackMax),
		globals: table.New(),
		strings: table.New(),
		heap:    &value.Heap{},
		stdout:  stdout,
		stderr:  stderr,
		log:     opts.Logger,
	}
}

// InternString finds or creates the canonical handle for s's contents,
// implementing compiler.StringInterner so the compiler can fold string
// and identifier literals into the same pool the VM uses at run time.
// Go strings are already immutable, so there is no separately-owned
// caller buffer to free.
func (vm *VM) InternString(s string) *value.Obj {
	hash := value.HashString(s)
	if found := vm.strings.FindString(s, hash); found != nil {
		return found
	}
	obj := vm.heap.AllocateString(s)
	vm.strings.Set(obj, value.Nil())
	return obj
}

// Interpret compiles and runs source, returning the outcome and, for a
// compile error, nil (diagnostics already went to Stderr); for a runtime
// error, the *RuntimeError describing it.
func (vm *VM) Interpret(source string) (InterpretResult, error) {
	ch, ok := compiler.Compile(source, vm, vm.stderr)
	if !ok {
		return InterpretCompileError, nil
	}
	vm.chunk = ch
	vm.ip = 0
	return vm.run()
}

// Free releases the globals table, string pool, and object heap.
func (vm *VM) Free() {
	vm.globals = table.New()
	vm.strings = table.New()
	vm.heap.Free()
	vm.stack = vm.stack[:0]
}

func (vm *VM) push(v value.Value) {
	vm.stack = append(vm.stack, v)
}

func (vm *VM) pop() value.Value {
	v := vm.stack[len(vm.stack)-1]
	vm.stack = vm.stack[:len(vm.stack)-1]
	return v
}

// peek reads stackTop[-1-distance] without mutating the stack.
func (vm *VM) peek(distance int) value.Value {
	return vm.stack[len(vm.stack)-1-distance]
}

func (vm *VM) resetStack() {
	vm.stack = vm.stack[:0]
}

func (vm *VM) readByte() byte {
	b := vm.chunk.Code[vm.ip]
	vm.ip++
	return b
}

// readU16 decodes a big-endian 16-bit operand.
func (vm *VM) readU16() int {
	hi := vm.chunk.Code[vm.ip]
	lo := vm.chunk.Code[vm.ip+1]
	vm.ip += 2
	return int(hi)<<8 | int(lo)
}

func (vm *VM) readConstant() value.Value {
	return vm.chunk.Constants[vm.readByte()]
}

// runtimeError formats a RuntimeError at the line of the instruction
// that just executed, writes it to Stderr, resets the stack, and
// returns the RUNTIME_ERROR outcome.
func (vm *VM) runtimeError(format string, args ...any) (InterpretResult, error) {
	message := fmt.Sprintf(format, args...)
	line := 0
	if vm.ip-1 >= 0 && vm.ip-1 < len(vm.chunk.Lines) {
		line = vm.chunk.Lines[vm.ip-1]
	}
	err := &RuntimeError{Line: line, Message: message}
	fmt.Fprintln(vm.stderr, err.Error())
	if vm.log != nil {
		vm.log.Error().Int("line", line).Str("message", message).Msg("runtime error")
	}
	vm.resetStack()
	return InterpretRuntimeError, err
}

func (vm *VM) run() (InterpretResult, error) {
	for {
		if vm.log != nil {
			op := chunk.OpCode(vm.chunk.Code[vm.ip])
			vm.log.Trace().
				Int("ip", vm.ip).
				Str("op", op.String()).
				Int("stack_depth", len(vm.stack)).
				Msg("dispatch")
		}

		op := chunk.OpCode(vm.readByte())
		switch op {
		case chunk.OpConstant:
			vm.push(vm.readConstant())

		case chunk.OpNil:
			vm.push(value.Nil())
		case chunk.OpTrue:
			vm.push(value.Boolean(true))
		case chunk.OpFalse:
			vm.push(value.Boolean(false))

		case chunk.OpPop:
			vm.pop()

		case chunk.OpGetLocal:
			slot := vm.readByte()
			vm.push(vm.stack[slot])
		case chunk.OpSetLocal:
			slot := vm.readByte()
			vm.stack[slot] = vm.peek(0)

		case chunk.OpGetGlobal:
			name := vm.readConstant()
			val, ok := vm.globals.Get(name.Obj)
			if !ok {
				return vm.runtimeError("Undefined variable '%s'.", value.AsString(name))
			}
			vm.push(val)
		case chunk.OpDefineGlobal:
			name := vm.readConstant()
			vm.globals.Set(name.Obj, vm.pop())
		case chunk.OpSetGlobal:
			name := vm.readConstant()
			if vm.globals.Set(name.Obj, vm.peek(0)) {
				// Key was new: it was never defined. Undo the insert so a
				// failed assignment leaves the table unchanged, then report.
				vm.globals.Delete(name.Obj)
				return vm.runtimeError("Undefined variable '%s'.", value.AsString(name))
			}

		case chunk.OpEqual:
			b := vm.pop()
			a := vm.pop()
			vm.push(value.Boolean(value.Equal(a, b)))

		case chunk.OpGreater, chunk.OpLess, chunk.OpSubtract, chunk.OpMultiply, chunk.OpDivide:
			if res, err := vm.binaryOp(op); res != InterpretOK {
				return res, err
			}

		case chunk.OpAdd:
			if res, err := vm.add(); res != InterpretOK {
				return res, err
			}

		case chunk.OpNot:
			vm.push(value.Boolean(value.IsFalsey(vm.pop())))

		case chunk.OpNegate:
			if vm.peek(0).Type != value.TypeNumber {
				return vm.runtimeError("Operand must be a number.")
			}
			vm.push(value.Num(-vm.pop().Number))

		case chunk.OpPrint:
			fmt.Fprintln(vm.stdout, formatValue(vm.pop()))

		case chunk.OpJump:
			offset := vm.readU16()
			vm.ip += offset
		case chunk.OpJumpIfFalse:
			offset := vm.readU16()
			if value.IsFalsey(vm.peek(0)) {
				vm.ip += offset
			}
		case chunk.OpLoop:
			offset := vm.readU16()
			vm.ip -= offset

		case chunk.OpReturn:
			return InterpretOK, nil

		default:
			return vm.runtimeError("unknown opcode %d", op)
		}
	}
}

// binaryOp handles GREATER, LESS, SUBTRACT, MULTIPLY, DIVIDE: both
// operands are peeked before any pop, so a type error leaves the stack
// untouched.
func (vm *VM) binaryOp(op chunk.OpCode) (InterpretResult, error) {
	a, b := vm.peek(1), vm.peek(0)
	if a.Type != value.TypeNumber || b.Type != value.TypeNumber {
		return vm.runtimeError("Operands must be numbers.")
	}
	vm.pop()
	vm.pop()
	switch op {
	case chunk.OpGreater:
		vm.push(value.Boolean(a.Number > b.Number))
	case chunk.OpLess:
		vm.push(value.Boolean(a.Number < b.Number))
	case chunk.OpSubtract:
		vm.push(value.Num(a.Number - b.Number))
	case chunk.OpMultiply:
		vm.push(value.Num(a.Number * b.Number))
	case chunk.OpDivide:
		vm.push(value.Num(a.Number / b.Number))
	}
	return InterpretOK, nil
}

// add implements ADD's special dispatch: two numbers sum, two strings
// concatenate into a newly interned string, anything else is a runtime
// error. Operands are peeked before popping.
func (vm *VM) add() (InterpretResult, error) {
	a, b := vm.peek(1), vm.peek(0)
	switch {
	case a.Type == value.TypeNumber && b.Type == value.TypeNumber:
		vm.pop()
		vm.pop()
		vm.push(value.Num(a.Number + b.Number))
	case value.IsString(a) && value.IsString(b):
		vm.pop()
		vm.pop()
		obj := vm.InternString(value.AsString(a) + value.AsString(b))
		vm.push(value.Object(obj))
	default:
		return vm.runtimeError("Operands must be two numbers or two strings.")
	}
	return InterpretOK, nil
}

// formatValue renders v the way PRINT writes it: Nil as "nil", booleans
// as "true"/"false", numbers in shortest round-tripping form, strings
// raw.
func formatValue(v value.Value) string {
	switch v.Type {
	case value.TypeNil:
		return "nil"
	case value.TypeBool:
		if v.Bool {
			return "true"
		}
		return "false"
	case value.TypeNumber:
		return strconv.FormatFloat(v.Number, 'g', -1, 64)
	case value.TypeObject:
		if value.IsString(v) {
			return value.AsString(v)
		}
		return "<object>"
	default:
		return "<nil>"
	}
}
