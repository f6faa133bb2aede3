package compiler

import "github.com/emberlang/ember/internal/token"

// maxLocals bounds the number of simultaneously live locals.
const maxLocals = 256

// uninitialized marks a local as declared but not yet readable.
const uninitialized = -1

type local struct {
	name  token.Token
	depth int
}

// beginScope enters a new lexical block.
func (c *Compiler) beginScope() {
	c.scopeDepth++
}

// endScope leaves the current block, emitting one OP_POP per local that
// goes out of scope.
func (c *Compiler) endScope() {
	c.scopeDepth--
	for len(c.locals) > 0 && c.locals[len(c.locals)-1].depth > c.scopeDepth {
		c.emitByte(byte(opPop))
		c.locals = c.locals[:len(c.locals)-1]
	}
}

// addLocal declares name as a new local, uninitialized until
// markInitialized is called. Reports "Too many local variables in
// function." once 256 locals are already live.
func (c *Compiler) addLocal(name token.Token) {
	if len(c.locals) >= maxLocals {
		c.errorAtPrevious("Too many local variables in function.")
		return
	}
	c.locals = append(c.locals, local{name: name, depth: uninitialized})
}

// declareVariable registers a local in the current scope, rejecting a
// redeclaration of the same name at the same depth. A scopeDepth of 0 is
// a no-op here: globals are resolved by name at runtime, not by slot.
func (c *Compiler) declareVariable(name token.Token) {
	if c.scopeDepth == 0 {
		return
	}
	for i := len(c.locals) - 1; i >= 0; i-- {
		l := &c.locals[i]
		if l.depth != uninitialized && l.depth < c.scopeDepth {
			break
		}
		if l.name.Lexeme == name.Lexeme {
			c.errorAtPrevious("Already a variable with this name in this scope.")
		}
	}
	c.addLocal(name)
}

// markInitialized marks the most recently declared local as usable.
func (c *Compiler) markInitialized() {
	if c.scopeDepth == 0 {
		return
	}
	c.locals[len(c.locals)-1].depth = c.scopeDepth
}

// resolveLocal scans locals from the most recently declared backward,
// returning the first match; this is what guarantees lexical shadowing.
// ok is false if name is not a local in scope.
func (c *Compiler) resolveLocal(name string) (slot int, ok bool) {
	for i := len(c.locals) - 1; i >= 0; i-- {
		l := &c.locals[i]
		if l.name.Lexeme == name {
			if l.depth == uninitialized {
				c.errorAtPrevious("Can't read local variable in its own initializer.")
			}
			return i, true
		}
	}
	return 0, false
}
