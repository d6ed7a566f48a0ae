package image

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"testing"
)

func testImage() *Image {
	return &Image{Classes: []Class{
		{
			Name:   "test.Test1",
			Consts: []string{"blort"},
			Fields: map[string]string{"greeting": "hello"},
			Methods: []Method{{
				Name: "test",
				Code: []Instr{{Op: OpConst, Arg: 0}, {Op: OpReturn}},
			}},
		},
		{
			Name:   "test.Aardvark",
			Consts: []string{"first"},
		},
	}}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	t.Parallel()

	img := testImage()
	data, err := Encode(img)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if !bytes.Equal(data[:len(Magic)], Magic) {
		t.Fatalf("Encode() magic = %q, want %q", data[:len(Magic)], Magic)
	}

	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if len(got.Classes) != 2 {
		t.Fatalf("Decode() classes = %d, want 2", len(got.Classes))
	}
	cls, ok := got.Lookup("test.Test1")
	if !ok {
		t.Fatal("Lookup(test.Test1) ok = false, want true")
	}
	if cls.Consts[0] != "blort" {
		t.Fatalf("const = %q, want %q", cls.Consts[0], "blort")
	}
	if cls.Fields["greeting"] != "hello" {
		t.Fatalf("field = %q, want %q", cls.Fields["greeting"], "hello")
	}
}

func TestDecodeBadMagic(t *testing.T) {
	t.Parallel()

	if _, err := Decode([]byte("XXXXjunk")); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("Decode() error = %v, want ErrCorrupt", err)
	}
	if _, err := Decode(nil); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("Decode(nil) error = %v, want ErrCorrupt", err)
	}
}

func TestDecodeTruncatedPayload(t *testing.T) {
	t.Parallel()

	data, err := Encode(testImage())
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if _, err := Decode(data[:len(data)/2]); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("Decode() error = %v, want ErrCorrupt", err)
	}
}

func TestDecodeDuplicateClass(t *testing.T) {
	t.Parallel()

	data, err := Encode(&Image{Classes: []Class{
		{Name: "test.Dup"},
		{Name: "test.Dup"},
	}})
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if _, err := Decode(data); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("Decode() error = %v, want ErrCorrupt", err)
	}
}

func TestDecodeEmptyClassTable(t *testing.T) {
	t.Parallel()

	data, err := Encode(&Image{})
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if _, err := Decode(data); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("Decode() error = %v, want ErrCorrupt", err)
	}
}

func TestOptimizeRoundTrip(t *testing.T) {
	t.Parallel()

	raw, err := Encode(testImage())
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	art, err := Optimize(raw)
	if err != nil {
		t.Fatalf("Optimize() error = %v", err)
	}
	if !IsArtifact(art) {
		t.Fatal("IsArtifact() = false, want true")
	}
	if IsArtifact(raw) {
		t.Fatal("IsArtifact(raw) = true, want false")
	}

	sum, ok := SourceSum(art)
	if !ok {
		t.Fatal("SourceSum() ok = false, want true")
	}
	want := sha256.Sum256(raw)
	if !bytes.Equal(sum, want[:]) {
		t.Fatal("SourceSum() does not match SHA-256 of raw container")
	}

	img, err := DecodeArtifact(art)
	if err != nil {
		t.Fatalf("DecodeArtifact() error = %v", err)
	}
	if len(img.Classes) != 2 {
		t.Fatalf("classes = %d, want 2", len(img.Classes))
	}
	// Optimize sorts the class table by name.
	if img.Classes[0].Name != "test.Aardvark" || img.Classes[1].Name != "test.Test1" {
		t.Fatalf("classes not sorted: %q, %q", img.Classes[0].Name, img.Classes[1].Name)
	}
}

func TestOptimizeDeterministic(t *testing.T) {
	t.Parallel()

	raw, err := Encode(testImage())
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	a, err := Optimize(raw)
	if err != nil {
		t.Fatalf("Optimize() error = %v", err)
	}
	b, err := Optimize(raw)
	if err != nil {
		t.Fatalf("Optimize() error = %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Fatal("Optimize() output differs between runs for the same input")
	}
}

func TestOptimizeRejectsCorruptInput(t *testing.T) {
	t.Parallel()

	if _, err := Optimize([]byte("not a container")); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("Optimize() error = %v, want ErrCorrupt", err)
	}
}

func TestDecodeArtifactRejectsRaw(t *testing.T) {
	t.Parallel()

	raw, err := Encode(testImage())
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if _, err := DecodeArtifact(raw); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("DecodeArtifact() error = %v, want ErrCorrupt", err)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		class   Class
		wantErr bool
	}{
		{
			name: "const return",
			class: Class{Name: "t.C", Consts: []string{"x"}, Methods: []Method{{
				Name: "m",
				Code: []Instr{{Op: OpConst, Arg: 0}, {Op: OpReturn}},
			}}},
		},
		{
			name: "resource load",
			class: Class{Name: "t.C", Consts: []string{"r.txt"}, Methods: []Method{{
				Name: "m",
				Code: []Instr{{Op: OpConst, Arg: 0}, {Op: OpResource}, {Op: OpReturn}},
			}}},
		},
		{
			name:  "no methods",
			class: Class{Name: "t.C"},
		},
		{
			name: "const out of range",
			class: Class{Name: "t.C", Consts: []string{"x"}, Methods: []Method{{
				Name: "m",
				Code: []Instr{{Op: OpConst, Arg: 9}, {Op: OpReturn}},
			}}},
			wantErr: true,
		},
		{
			name: "empty body",
			class: Class{Name: "t.C", Methods: []Method{{
				Name: "m",
			}}},
			wantErr: true,
		},
		{
			name: "missing return",
			class: Class{Name: "t.C", Consts: []string{"x"}, Methods: []Method{{
				Name: "m",
				Code: []Instr{{Op: OpConst, Arg: 0}},
			}}},
			wantErr: true,
		},
		{
			name: "return with empty stack",
			class: Class{Name: "t.C", Methods: []Method{{
				Name: "m",
				Code: []Instr{{Op: OpReturn}},
			}}},
			wantErr: true,
		},
		{
			name: "resource underflow",
			class: Class{Name: "t.C", Methods: []Method{{
				Name: "m",
				Code: []Instr{{Op: OpResource}, {Op: OpReturn}},
			}}},
			wantErr: true,
		},
		{
			name: "code after return",
			class: Class{Name: "t.C", Consts: []string{"x"}, Methods: []Method{{
				Name: "m",
				Code: []Instr{{Op: OpConst, Arg: 0}, {Op: OpReturn}, {Op: OpConst, Arg: 0}},
			}}},
			wantErr: true,
		},
		{
			name: "unknown opcode",
			class: Class{Name: "t.C", Methods: []Method{{
				Name: "m",
				Code: []Instr{{Op: 99}, {Op: OpReturn}},
			}}},
			wantErr: true,
		},
		{
			name: "unnamed method",
			class: Class{Name: "t.C", Consts: []string{"x"}, Methods: []Method{{
				Code: []Instr{{Op: OpConst, Arg: 0}, {Op: OpReturn}},
			}}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.class.Validate()
			if tt.wantErr {
				if !errors.Is(err, ErrBadCode) {
					t.Fatalf("Validate() error = %v, want ErrBadCode", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate() error = %v", err)
			}
		})
	}
}
