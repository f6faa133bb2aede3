package compiler

import (
	"bytes"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/emberlang/ember/internal/chunk"
	"github.com/emberlang/ember/internal/table"
	"github.com/emberlang/ember/internal/value"
)

// testInterner is the find-or-allocate string interner the VM will later
// provide for real; reproduced here so the compiler can be tested in
// isolation without importing internal/vm (which itself imports
// internal/compiler).
type testInterner struct {
	heap    *value.Heap
	strings *table.Table
}

func newTestInterner() *testInterner {
	return &testInterner{heap: &value.Heap{}, strings: table.New()}
}

func (it *testInterner) InternString(s string) *value.Obj {
	hash := value.HashString(s)
	if found := it.strings.FindString(s, hash); found != nil {
		return found
	}
	obj := it.heap.AllocateString(s)
	it.strings.Set(obj, value.Nil())
	return obj
}

func compileOK(t *testing.T, source string) *chunk.Chunk {
	t.Helper()
	var errBuf bytes.Buffer
	ch, ok := Compile(source, newTestInterner(), &errBuf)
	if !ok {
		t.Fatalf("Compile(%q) failed: %s", source, errBuf.String())
	}
	return ch
}

// countOp counts instructions whose opcode is op, stepping over operand
// bytes so that an operand equal to op's byte value is not counted.
func countOp(ch *chunk.Chunk, op chunk.OpCode) int {
	n := 0
	for i := 0; i < len(ch.Code); {
		cur := chunk.OpCode(ch.Code[i])
		if cur == op {
			n++
		}
		switch cur {
		case chunk.OpConstant, chunk.OpGetLocal, chunk.OpSetLocal,
			chunk.OpGetGlobal, chunk.OpDefineGlobal, chunk.OpSetGlobal:
			i += 2
		case chunk.OpJump, chunk.OpJumpIfFalse, chunk.OpLoop:
			i += 3
		default:
			i++
		}
	}
	return n
}

func TestCompileArithmeticEmitsExpectedOps(t *testing.T) {
	ch := compileOK(t, "print 1 + 2 * 3;")
	if countOp(ch, chunk.OpMultiply) != 1 || countOp(ch, chunk.OpAdd) != 1 {
		t.Fatalf("expected one multiply and one add, got code %v", ch.Code)
	}
	if ch.Code[len(ch.Code)-2] != byte(chunk.OpPrint) {
		t.Fatalf("expected OP_PRINT before trailing OP_RETURN, got %v", ch.Code)
	}
}

func TestCompileGlobalVarRoundTrip(t *testing.T) {
	ch := compileOK(t, "var x = 10; print x;")
	if countOp(ch, chunk.OpDefineGlobal) != 1 {
		t.Fatalf("expected one OP_DEFINE_GLOBAL")
	}
	if countOp(ch, chunk.OpGetGlobal) != 1 {
		t.Fatalf("expected one OP_GET_GLOBAL")
	}
}

func TestCompileLocalScopeUsesSlotsNotGlobals(t *testing.T) {
	ch := compileOK(t, "{ var x = 1; print x; }")
	if countOp(ch, chunk.OpDefineGlobal) != 0 {
		t.Fatalf("block-scoped var must not compile to a global")
	}
	if countOp(ch, chunk.OpGetLocal) != 1 {
		t.Fatalf("expected one OP_GET_LOCAL")
	}
	if countOp(ch, chunk.OpPop) == 0 {
		t.Fatalf("expected endScope to pop the local")
	}
}

func TestCompileIfElseEmitsJumps(t *testing.T) {
	ch := compileOK(t, `if (true) { print 1; } else { print 2; }`)
	if countOp(ch, chunk.OpJumpIfFalse) != 1 || countOp(ch, chunk.OpJump) != 1 {
		t.Fatalf("expected one conditional and one unconditional jump, got %v", ch.Code)
	}
}

func TestCompileWhileEmitsLoop(t *testing.T) {
	ch := compileOK(t, `var i = 0; while (i < 3) { i = i + 1; }`)
	if countOp(ch, chunk.OpLoop) != 1 {
		t.Fatalf("expected one OP_LOOP, got %v", ch.Code)
	}
}

func TestCompileForDesugarsToLoop(t *testing.T) {
	ch := compileOK(t, `for (var i = 0; i < 3; i = i + 1) { print i; }`)
	if countOp(ch, chunk.OpLoop) != 2 {
		t.Fatalf("expected for with an increment to emit two OP_LOOPs (increment to condition, body to increment)")
	}
}

func TestCompileAndOrShortCircuit(t *testing.T) {
	ch := compileOK(t, `print true and false; print true or false;`)
	if countOp(ch, chunk.OpJumpIfFalse) != 2 {
		t.Fatalf("expected and+or to each emit a conditional jump, got %v", ch.Code)
	}
}

func TestCompileReportsUndefinedSyntax(t *testing.T) {
	var errBuf bytes.Buffer
	_, ok := Compile("print ;", newTestInterner(), &errBuf)
	if ok {
		t.Fatalf("expected compile failure for missing expression")
	}
	if !strings.Contains(errBuf.String(), "Expect expression.") {
		t.Fatalf("expected 'Expect expression.' diagnostic, got %q", errBuf.String())
	}
}

func TestCompileReportsRedeclarationInSameScope(t *testing.T) {
	var errBuf bytes.Buffer
	_, ok := Compile("{ var a = 1; var a = 2; }", newTestInterner(), &errBuf)
	if ok {
		t.Fatalf("expected compile failure for duplicate local declaration")
	}
	if !strings.Contains(errBuf.String(), "Already a variable with this name in this scope.") {
		t.Fatalf("unexpected diagnostic: %q", errBuf.String())
	}
}

func TestCompileReportsSelfReferentialInitializer(t *testing.T) {
	var errBuf bytes.Buffer
	_, ok := Compile("{ var a = a; }", newTestInterner(), &errBuf)
	if ok {
		t.Fatalf("expected compile failure for reading a local in its own initializer")
	}
	if !strings.Contains(errBuf.String(), "Can't read local variable in its own initializer.") {
		t.Fatalf("unexpected diagnostic: %q", errBuf.String())
	}
}

func TestCompileOneErrorDoesNotCascade(t *testing.T) {
	var errBuf bytes.Buffer
	_, ok := Compile("print ; print 1;", newTestInterner(), &errBuf)
	if ok {
		t.Fatalf("expected compile failure")
	}
	if strings.Count(errBuf.String(), "[line") != 1 {
		t.Fatalf("expected synchronize() to suppress cascading errors, got: %q", errBuf.String())
	}
}

func TestCompileTooManyLocalsReportsError(t *testing.T) {
	var src strings.Builder
	src.WriteString("{\n")
	for i := 0; i < 257; i++ {
		src.WriteString("var v")
		src.WriteString(strings_itoa(i))
		src.WriteString(" = 0;\n")
	}
	src.WriteString("}\n")

	var errBuf bytes.Buffer
	_, ok := Compile(src.String(), newTestInterner(), &errBuf)
	if ok {
		t.Fatalf("expected compile failure past 256 locals")
	}
	if !strings.Contains(errBuf.String(), "Too many local variables in function.") {
		t.Fatalf("unexpected diagnostic: %q", errBuf.String())
	}
}

func strings_itoa(i int) string {
	if i == 0 {
		return "0"
	}
	digits := []byte{}
	for i > 0 {
		digits = append([]byte{byte('0' + i%10)}, digits...)
		i /= 10
	}
	return string(digits)
}

// TestScopeBeginEndSymmetry is a gopter property: for any sequence of
// nested scopes each introducing one local, the compiler must emit
// exactly one OP_POP per local once all scopes close, regardless of
// nesting depth.
func TestScopeBeginEndSymmetry(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("closing N nested scopes pops exactly N locals", prop.ForAll(
		func(depth int) bool {
			var src strings.Builder
			for i := 0; i < depth; i++ {
				src.WriteString("{ var v = ")
				src.WriteString(strings_itoa(i))
				src.WriteString(";\n")
			}
			for i := 0; i < depth; i++ {
				src.WriteString("}\n")
			}
			ch := compileOK(t, src.String())
			return countOp(ch, chunk.OpPop) == depth
		},
		gen.IntRange(0, 20),
	))

	properties.TestingRun(t)
}
