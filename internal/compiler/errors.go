package compiler

import "fmt"

// CompileError is one diagnostic produced while compiling.
type CompileError struct {
	Line    int
	Where   string // "" (lexical error), " at end", or " at '<lexeme>'"
	Message string
}

func (e CompileError) Error() string {
	return fmt.Sprintf("[line %d] Error%s: %s", e.Line, e.Where, e.Message)
}
