// Package engine executes method bodies from loaded class definitions.
//
// The machine is a small operand stack of byte strings. Methods push
// constants, exchange a name on the stack for resource content through
// the caller-supplied resolver, and return the top of the stack.
package engine

import (
	"errors"
	"fmt"

	"github.com/meigma/codeload/internal/image"
)

// ErrNoMethod is returned when the class does not define the method.
var ErrNoMethod = errors.New("engine: no such method")

// ResourceResolver resolves resource names for OpResource instructions.
// The loader that materialized the class passes itself here, so a
// method may load resources from any entry of that loader's classpath,
// not just the entry the class came from.
type ResourceResolver interface {
	Resource(name string) ([]byte, error)
}

// Call runs the named method on the class and returns its result.
//
// Code is assumed to have passed image.Class.Validate; structural
// faults encountered anyway are reported as image.ErrBadCode.
func Call(cls *image.Class, method string, res ResourceResolver) ([]byte, error) {
	m, ok := cls.Method(method)
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrNoMethod, cls.Name, method)
	}

	var stack [][]byte
	for _, in := range m.Code {
		switch in.Op {
		case image.OpConst:
			if int(in.Arg) >= len(cls.Consts) {
				return nil, fmt.Errorf("%w: constant %d out of range", image.ErrBadCode, in.Arg)
			}
			stack = append(stack, []byte(cls.Consts[in.Arg]))
		case image.OpResource:
			if len(stack) == 0 {
				return nil, fmt.Errorf("%w: stack underflow", image.ErrBadCode)
			}
			if res == nil {
				return nil, errors.New("engine: no resource resolver")
			}
			name := string(stack[len(stack)-1])
			content, err := res.Resource(name)
			if err != nil {
				return nil, fmt.Errorf("load resource %q: %w", name, err)
			}
			stack[len(stack)-1] = content
		case image.OpReturn:
			if len(stack) == 0 {
				return nil, fmt.Errorf("%w: return with empty stack", image.ErrBadCode)
			}
			return stack[len(stack)-1], nil
		default:
			return nil, fmt.Errorf("%w: unknown opcode %d", image.ErrBadCode, in.Op)
		}
	}
	return nil, fmt.Errorf("%w: missing return", image.ErrBadCode)
}
