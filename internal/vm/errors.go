package vm

import "fmt"

// RuntimeError is raised by a dynamic type violation or undefined-variable
// access while running a chunk.
type RuntimeError struct {
	Line    int
	Message string
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("%s\n[line %d] in script", e.Message, e.Line)
}
