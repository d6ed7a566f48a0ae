package engine

import (
	"errors"
	"fmt"
	"testing"

	"github.com/meigma/codeload/internal/image"
)

type mapResolver map[string][]byte

func (m mapResolver) Resource(name string) ([]byte, error) {
	content, ok := m[name]
	if !ok {
		return nil, fmt.Errorf("no resource %q", name)
	}
	return content, nil
}

func TestCallConstReturn(t *testing.T) {
	t.Parallel()

	cls := &image.Class{
		Name:   "test.Test1",
		Consts: []string{"blort"},
		Methods: []image.Method{{
			Name: "test",
			Code: []image.Instr{{Op: image.OpConst, Arg: 0}, {Op: image.OpReturn}},
		}},
	}

	got, err := Call(cls, "test", nil)
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if string(got) != "blort" {
		t.Fatalf("Call() = %q, want %q", got, "blort")
	}
}

func TestCallResourceLoad(t *testing.T) {
	t.Parallel()

	cls := &image.Class{
		Name:   "test.TestMethods",
		Consts: []string{"test/Resource1.txt"},
		Methods: []image.Method{{
			Name: "test_getResourceAsStream",
			Code: []image.Instr{
				{Op: image.OpConst, Arg: 0},
				{Op: image.OpResource},
				{Op: image.OpReturn},
			},
		}},
	}
	res := mapResolver{"test/Resource1.txt": []byte("Muffins are tasty!\n")}

	got, err := Call(cls, "test_getResourceAsStream", res)
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if string(got) != "Muffins are tasty!\n" {
		t.Fatalf("Call() = %q", got)
	}
}

func TestCallNoMethod(t *testing.T) {
	t.Parallel()

	cls := &image.Class{Name: "test.Test1"}
	if _, err := Call(cls, "missing", nil); !errors.Is(err, ErrNoMethod) {
		t.Fatalf("Call() error = %v, want ErrNoMethod", err)
	}
}

func TestCallResolverErrorPropagates(t *testing.T) {
	t.Parallel()

	cls := &image.Class{
		Name:   "test.TestMethods",
		Consts: []string{"gone.txt"},
		Methods: []image.Method{{
			Name: "load",
			Code: []image.Instr{
				{Op: image.OpConst, Arg: 0},
				{Op: image.OpResource},
				{Op: image.OpReturn},
			},
		}},
	}

	_, err := Call(cls, "load", mapResolver{})
	if err == nil {
		t.Fatal("Call() error = nil, want resolver error")
	}
}

func TestCallNoResolver(t *testing.T) {
	t.Parallel()

	cls := &image.Class{
		Name:   "test.TestMethods",
		Consts: []string{"r.txt"},
		Methods: []image.Method{{
			Name: "load",
			Code: []image.Instr{
				{Op: image.OpConst, Arg: 0},
				{Op: image.OpResource},
				{Op: image.OpReturn},
			},
		}},
	}

	if _, err := Call(cls, "load", nil); err == nil {
		t.Fatal("Call() error = nil, want error for missing resolver")
	}
}

func TestCallBadCode(t *testing.T) {
	t.Parallel()

	cls := &image.Class{
		Name: "test.Broken",
		Methods: []image.Method{{
			Name: "m",
			Code: []image.Instr{{Op: image.OpConst, Arg: 7}, {Op: image.OpReturn}},
		}},
	}

	if _, err := Call(cls, "m", nil); !errors.Is(err, image.ErrBadCode) {
		t.Fatalf("Call() error = %v, want ErrBadCode", err)
	}
}
