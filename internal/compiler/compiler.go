// Package compiler implements a single-pass Pratt compiler: it parses
// tokens from a lexer.Lexer and emits bytecode into a chunk.Chunk
// directly, with no intermediate syntax tree.
package compiler

import (
	"fmt"
	"io"

	"github.com/emberlang/ember/internal/chunk"
	"github.com/emberlang/ember/internal/lexer"
	"github.com/emberlang/ember/internal/token"
	"github.com/emberlang/ember/internal/value"
)

// StringInterner finds-or-creates the canonical handle for a string's
// contents. The VM implements this (it owns both the object heap and the
// string-interning table); the compiler only needs it to turn identifier
// and literal lexemes into constant-pool entries.
type StringInterner interface {
	InternString(s string) *value.Obj
}

// Precedence orders binary operators from loosest to tightest binding.
type Precedence int

const (
	PrecNone Precedence = iota
	PrecAssignment
	PrecOr
	PrecAnd
	PrecEquality
	PrecComparison
	PrecTerm
	PrecFactor
	PrecUnary
	PrecCall
	PrecPrimary
)

type parseFn func(c *Compiler, canAssign bool)

type rule struct {
	prefix     parseFn
	infix      parseFn
	precedence Precedence
}

var rules map[token.Kind]rule

func init() {
	rules = map[token.Kind]rule{
		token.LeftParen:    {prefix: (*Compiler).grouping},
		token.Minus:        {prefix: (*Compiler).unary, infix: (*Compiler).binary, precedence: PrecTerm},
		token.Plus:         {infix: (*Compiler).binary, precedence: PrecTerm},
		token.Slash:        {infix: (*Compiler).binary, precedence: PrecFactor},
		token.Star:         {infix: (*Compiler).binary, precedence: PrecFactor},
		token.Bang:         {prefix: (*Compiler).unary},
		token.BangEqual:    {infix: (*Compiler).binary, precedence: PrecEquality},
		token.EqualEqual:   {infix: (*Compiler).binary, precedence: PrecEquality},
		token.Greater:      {infix: (*Compiler).binary, precedence: PrecComparison},
		token.GreaterEqual: {infix: (*Compiler).binary, precedence: PrecComparison},
		token.Less:         {infix: (*Compiler).binary, precedence: PrecComparison},
		token.LessEqual:    {infix: (*Compiler).binary, precedence: PrecComparison},
		token.Identifier:   {prefix: (*Compiler).variable},
		token.String:       {prefix: (*Compiler).stringLiteral},
		token.Number:       {prefix: (*Compiler).number},
		token.And:          {infix: (*Compiler).and, precedence: PrecAnd},
		token.Or:           {infix: (*Compiler).or, precedence: PrecOr},
		token.False:        {prefix: (*Compiler).literal},
		token.Nil:          {prefix: (*Compiler).literal},
		token.True:         {prefix: (*Compiler).literal},
	}
}

func ruleFor(kind token.Kind) rule {
	if r, ok := rules[kind]; ok {
		return r
	}
	return rule{}
}

// Compiler holds parser state (current/previous token, error flags) and
// code-generation state (the active chunk, locals, scope depth) in one
// struct, fusing parsing and emission into a single pass instead of a
// parser-then-compiler pipeline.
type Compiler struct {
	lex      *lexer.Lexer
	current  token.Token
	previous token.Token

	hadError  bool
	panicMode bool
	errors    []CompileError
	errOut    io.Writer

	chunk    *chunk.Chunk
	interner StringInterner

	locals     []local
	scopeDepth int
}

// Compile compiles source into a chunk. ok is false if any compile error
// was reported; ch is still returned (possibly partially emitted) so
// callers can inspect it, but a caller must treat !ok as "do not run
// this chunk."
func Compile(source string, interner StringInterner, errOut io.Writer) (ch *chunk.Chunk, ok bool) {
	c := &Compiler{
		lex:      lexer.New(source),
		chunk:    chunk.New(),
		interner: interner,
		errOut:   errOut,
	}
	c.advance()
	for !c.match(token.EOF) {
		c.declaration()
	}
	c.emitByte(byte(opReturn))
	return c.chunk, !c.hadError
}

// Errors returns every diagnostic this Compiler has recorded. Compile does
// not return its Compiler, so callers of Compile see diagnostics only
// through the writer passed to it.
func (c *Compiler) Errors() []CompileError { return c.errors }

// --- token stream -----------------------------------------------------

func (c *Compiler) advance() {
	c.previous = c.current
	for {
		c.current = c.lex.ScanToken()
		if c.current.Kind != token.Illegal {
			break
		}
		c.errorAtCurrent(c.current.Lexeme)
	}
}

func (c *Compiler) check(kind token.Kind) bool {
	return c.current.Kind == kind
}

func (c *Compiler) match(kind token.Kind) bool {
	if !c.check(kind) {
		return false
	}
	c.advance()
	return true
}

func (c *Compiler) consume(kind token.Kind, message string) {
	if c.current.Kind == kind {
		c.advance()
		return
	}
	c.errorAtCurrent(message)
}

// --- error reporting ----------------------------------------------------

func (c *Compiler) errorAt(tok token.Token, message string) {
	if c.panicMode {
		return
	}
	c.panicMode = true

	where := ""
	switch tok.Kind {
	case token.EOF:
		where = " at end"
	case token.Illegal:
		// lexical errors already carry their own message; no lexeme to show
	default:
		where = fmt.Sprintf(" at '%s'", tok.Lexeme)
	}

	ce := CompileError{Line: tok.Line, Where: where, Message: message}
	c.errors = append(c.errors, ce)
	if c.errOut != nil {
		fmt.Fprintln(c.errOut, ce.Error())
	}
	c.hadError = true
}

func (c *Compiler) errorAtCurrent(message string)  { c.errorAt(c.current, message) }
func (c *Compiler) errorAtPrevious(message string) { c.errorAt(c.previous, message) }

// --- byte emission -------------------------------------------------------

func (c *Compiler) emitByte(b byte) {
	c.chunk.Write(b, c.previous.Line)
}

func (c *Compiler) emitBytes(b1, b2 byte) {
	c.emitByte(b1)
	c.emitByte(b2)
}

func (c *Compiler) emitConstant(v value.Value) {
	idx, ok := c.chunk.AddConstant(v)
	if !ok {
		c.errorAtPrevious("Too many constants in one chunk.")
		return
	}
	c.emitBytes(byte(opConstant), byte(idx))
}

// emitJump writes op followed by a two-byte placeholder offset, and
// returns the offset of the placeholder's first byte for patchJump.
func (c *Compiler) emitJump(op chunk.OpCode) int {
	c.emitByte(byte(op))
	c.emitByte(0xff)
	c.emitByte(0xff)
	return len(c.chunk.Code) - 2
}

// patchJump backfills the placeholder at offset with the distance from
// just past the placeholder to the current end of the chunk.
func (c *Compiler) patchJump(offset int) {
	jump := len(c.chunk.Code) - offset - 2
	if jump > 0xffff {
		c.errorAtPrevious("Too much code to jump over.")
		return
	}
	c.chunk.Code[offset] = byte((jump >> 8) & 0xff)
	c.chunk.Code[offset+1] = byte(jump & 0xff)
}

// emitLoop emits OP_LOOP with a backward offset to loopStart.
func (c *Compiler) emitLoop(loopStart int) {
	c.emitByte(byte(opLoop))
	offset := len(c.chunk.Code) - loopStart + 2
	if offset > 0xffff {
		c.errorAtPrevious("Loop body too large.")
		return
	}
	c.emitByte(byte((offset >> 8) & 0xff))
	c.emitByte(byte(offset & 0xff))
}

// --- expressions ---------------------------------------------------------

func (c *Compiler) expression() {
	c.parsePrecedence(PrecAssignment)
}

func (c *Compiler) parsePrecedence(precedence Precedence) {
	c.advance()
	prefixRule := ruleFor(c.previous.Kind).prefix
	if prefixRule == nil {
		c.errorAtPrevious("Expect expression.")
		return
	}

	canAssign := precedence <= PrecAssignment
	prefixRule(c, canAssign)

	for precedence <= ruleFor(c.current.Kind).precedence {
		c.advance()
		infixRule := ruleFor(c.previous.Kind).infix
		infixRule(c, canAssign)
	}

	if canAssign && c.match(token.Equal) {
		c.errorAtPrevious("Invalid assignment target.")
	}
}

func (c *Compiler) number(canAssign bool) {
	var n float64
	fmt.Sscanf(c.previous.Lexeme, "%g", &n)
	c.emitConstant(value.Num(n))
}

func (c *Compiler) stringLiteral(canAssign bool) {
	raw := c.previous.Lexeme
	// Lexeme includes the surrounding quotes (lexer.go); strip them.
	chars := raw[1 : len(raw)-1]
	obj := c.interner.InternString(chars)
	c.emitConstant(value.Object(obj))
}

func (c *Compiler) literal(canAssign bool) {
	switch c.previous.Kind {
	case token.False:
		c.emitByte(byte(opFalse))
	case token.True:
		c.emitByte(byte(opTrue))
	case token.Nil:
		c.emitByte(byte(opNil))
	}
}

func (c *Compiler) grouping(canAssign bool) {
	c.expression()
	c.consume(token.RightParen, "Expect ')' after expression.")
}

func (c *Compiler) unary(canAssign bool) {
	opKind := c.previous.Kind
	c.parsePrecedence(PrecUnary)
	switch opKind {
	case token.Minus:
		c.emitByte(byte(opNegate))
	case token.Bang:
		c.emitByte(byte(opNot))
	}
}

func (c *Compiler) binary(canAssign bool) {
	opKind := c.previous.Kind
	r := ruleFor(opKind)
	c.parsePrecedence(r.precedence + 1)

	switch opKind {
	case token.BangEqual:
		c.emitBytes(byte(opEqual), byte(opNot))
	case token.EqualEqual:
		c.emitByte(byte(opEqual))
	case token.Greater:
		c.emitByte(byte(opGreater))
	case token.GreaterEqual:
		c.emitBytes(byte(opLess), byte(opNot))
	case token.Less:
		c.emitByte(byte(opLess))
	case token.LessEqual:
		c.emitBytes(byte(opGreater), byte(opNot))
	case token.Plus:
		c.emitByte(byte(opAdd))
	case token.Minus:
		c.emitByte(byte(opSubtract))
	case token.Star:
		c.emitByte(byte(opMultiply))
	case token.Slash:
		c.emitByte(byte(opDivide))
	}
}

// and implements short-circuit evaluation: if the left operand is
// falsey, skip the right operand and leave the left operand's (falsey)
// value as the result.
func (c *Compiler) and(canAssign bool) {
	endJump := c.emitJump(opJumpIfFalse)
	c.emitByte(byte(opPop))
	c.parsePrecedence(PrecAnd)
	c.patchJump(endJump)
}

// or implements short-circuit evaluation symmetric to and.
func (c *Compiler) or(canAssign bool) {
	elseJump := c.emitJump(opJumpIfFalse)
	endJump := c.emitJump(opJump)

	c.patchJump(elseJump)
	c.emitByte(byte(opPop))

	c.parsePrecedence(PrecOr)
	c.patchJump(endJump)
}

func (c *Compiler) variable(canAssign bool) {
	c.namedVariable(c.previous, canAssign)
}

func (c *Compiler) namedVariable(name token.Token, canAssign bool) {
	var getOp, setOp chunk.OpCode
	slot, isLocal := c.resolveLocal(name.Lexeme)
	if isLocal {
		getOp, setOp = opGetLocal, opSetLocal
	} else {
		slot = int(c.identifierConstant(name))
		getOp, setOp = opGetGlobal, opSetGlobal
	}

	if canAssign && c.match(token.Equal) {
		c.expression()
		c.emitBytes(byte(setOp), byte(slot))
	} else {
		c.emitBytes(byte(getOp), byte(slot))
	}
}

// identifierConstant interns name's text and stores it as a constant-pool
// string, for use as a global variable's runtime key.
func (c *Compiler) identifierConstant(name token.Token) byte {
	obj := c.interner.InternString(name.Lexeme)
	idx, ok := c.chunk.AddConstant(value.Object(obj))
	if !ok {
		c.errorAtPrevious("Too many constants in one chunk.")
		return 0
	}
	return byte(idx)
}

// --- statements ------------------------------------------------------------

func (c *Compiler) declaration() {
	if c.match(token.Var) {
		c.varDeclaration()
	} else {
		c.statement()
	}
	if c.panicMode {
		c.synchronize()
	}
}

func (c *Compiler) varDeclaration() {
	global := c.parseVariable("Expect variable name.")

	if c.match(token.Equal) {
		c.expression()
	} else {
		c.emitByte(byte(opNil))
	}
	c.consume(token.Semicolon, "Expect ';' after variable declaration.")

	c.defineVariable(global)
}

// parseVariable declares the variable currently at c.previous (after the
// 'var' keyword is consumed and the name token is advanced past) and
// returns the global constant index (0 for locals, whose identity is
// tracked in c.locals instead).
func (c *Compiler) parseVariable(errorMessage string) byte {
	c.consume(token.Identifier, errorMessage)

	c.declareVariable(c.previous)
	if c.scopeDepth > 0 {
		return 0
	}
	return c.identifierConstant(c.previous)
}

func (c *Compiler) defineVariable(global byte) {
	if c.scopeDepth > 0 {
		c.markInitialized()
		return
	}
	c.emitBytes(byte(opDefineGlobal), global)
}

func (c *Compiler) statement() {
	switch {
	case c.match(token.Print):
		c.printStatement()
	case c.match(token.If):
		c.ifStatement()
	case c.match(token.While):
		c.whileStatement()
	case c.match(token.For):
		c.forStatement()
	case c.match(token.LeftBrace):
		c.beginScope()
		c.block()
		c.endScope()
	default:
		c.expressionStatement()
	}
}

func (c *Compiler) printStatement() {
	c.expression()
	c.consume(token.Semicolon, "Expect ';' after value.")
	c.emitByte(byte(opPrint))
}

func (c *Compiler) expressionStatement() {
	c.expression()
	c.consume(token.Semicolon, "Expect ';' after expression.")
	c.emitByte(byte(opPop))
}

func (c *Compiler) ifStatement() {
	c.consume(token.LeftParen, "Expect '(' after 'if'.")
	c.expression()
	c.consume(token.RightParen, "Expect ')' after condition.")

	thenJump := c.emitJump(opJumpIfFalse)
	c.emitByte(byte(opPop))
	c.statement()

	elseJump := c.emitJump(opJump)
	c.patchJump(thenJump)
	c.emitByte(byte(opPop))

	if c.match(token.Else) {
		c.statement()
	}
	c.patchJump(elseJump)
}

func (c *Compiler) whileStatement() {
	loopStart := len(c.chunk.Code)
	c.consume(token.LeftParen, "Expect '(' after 'while'.")
	c.expression()
	c.consume(token.RightParen, "Expect ')' after condition.")

	exitJump := c.emitJump(opJumpIfFalse)
	c.emitByte(byte(opPop))
	c.statement()
	c.emitLoop(loopStart)

	c.patchJump(exitJump)
	c.emitByte(byte(opPop))
}

// forStatement desugars C-style for into the while-loop bytecode shape:
// initializer, condition jump, body, increment, loop. With an increment
// clause the increment is emitted before the body, behind a jump, so two
// LOOPs are emitted: increment back to condition, body back to
// increment. for has no dedicated opcodes of its own.
func (c *Compiler) forStatement() {
	c.beginScope()
	c.consume(token.LeftParen, "Expect '(' after 'for'.")

	switch {
	case c.match(token.Semicolon):
		// no initializer
	case c.match(token.Var):
		c.varDeclaration()
	default:
		c.expressionStatement()
	}

	loopStart := len(c.chunk.Code)
	exitJump := -1
	if !c.match(token.Semicolon) {
		c.expression()
		c.consume(token.Semicolon, "Expect ';' after loop condition.")
		exitJump = c.emitJump(opJumpIfFalse)
		c.emitByte(byte(opPop))
	}

	if !c.match(token.RightParen) {
		bodyJump := c.emitJump(opJump)

		incrementStart := len(c.chunk.Code)
		c.expression()
		c.emitByte(byte(opPop))
		c.consume(token.RightParen, "Expect ')' after for clauses.")

		c.emitLoop(loopStart)
		loopStart = incrementStart
		c.patchJump(bodyJump)
	}

	c.statement()
	c.emitLoop(loopStart)

	if exitJump != -1 {
		c.patchJump(exitJump)
		c.emitByte(byte(opPop))
	}

	c.endScope()
}

func (c *Compiler) block() {
	for !c.check(token.RightBrace) && !c.check(token.EOF) {
		c.declaration()
	}
	c.consume(token.RightBrace, "Expect '}' after block.")
}

// synchronize discards tokens until a likely statement boundary, so one
// compile error doesn't cascade into a flood of spurious ones.
func (c *Compiler) synchronize() {
	c.panicMode = false
	for c.current.Kind != token.EOF {
		if c.previous.Kind == token.Semicolon {
			return
		}
		if token.BeginsStatement(c.current.Kind) {
			return
		}
		c.advance()
	}
}
