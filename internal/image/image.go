// Package image defines the bytecode container format and the optimize
// transform that turns a raw container into a cacheable artifact.
//
// A raw container is a 4-byte magic followed by a deterministically
// CBOR-encoded class table. An optimized artifact is a different magic,
// the SHA-256 of the raw container it was derived from, and the
// zstd-compressed class table re-encoded with classes sorted by name.
// The transform is deterministic for a given input.
package image

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"sort"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
)

// Container magics. Raw containers and optimized artifacts are
// distinguishable from their first four bytes.
var (
	Magic         = []byte{'C', 'B', 'C', '1'}
	ArtifactMagic = []byte{'O', 'C', 'B', '1'}
)

// maxDecoderMemory bounds zstd decompression of artifact payloads.
const maxDecoderMemory = 64 << 20

// HeaderSize is the length of an optimized artifact header: the
// artifact magic followed by the SHA-256 of the raw container.
const HeaderSize = 4 + sha256.Size

// Sentinel errors for container handling.
var (
	// ErrCorrupt is returned when a container or artifact cannot be
	// decoded: wrong magic, truncated data, or undecodable class table.
	ErrCorrupt = errors.New("image: corrupt container")

	// ErrBadCode is returned when a method body fails validation.
	ErrBadCode = errors.New("image: bad method code")
)

// Op is a single instruction opcode for the host execution engine.
type Op uint8

const (
	// OpConst pushes the constant pool entry at Arg.
	OpConst Op = iota + 1
	// OpResource pops a resource name and pushes the resource content.
	OpResource
	// OpReturn pops the top of the stack and returns it.
	OpReturn
)

// Instr is one instruction in a method body.
type Instr struct {
	Op  Op     `cbor:"op"`
	Arg uint16 `cbor:"arg,omitempty"`
}

// Method is a named entry point on a class.
type Method struct {
	Name string  `cbor:"name"`
	Code []Instr `cbor:"code"`
}

// Class is one class definition: a fully-qualified name, a string
// constant pool, static string fields, and methods.
type Class struct {
	Name    string            `cbor:"name"`
	Consts  []string          `cbor:"consts,omitempty"`
	Fields  map[string]string `cbor:"fields,omitempty"`
	Methods []Method          `cbor:"methods,omitempty"`
}

// Image is the class table of one container.
type Image struct {
	Classes []Class `cbor:"classes"`
}

// encMode is the CBOR encoder configured with Core Deterministic
// Encoding: same class table always produces identical bytes, which
// keeps the optimize transform deterministic for a given input.
var encMode cbor.EncMode

// decMode is the CBOR decoder configured to accept standard CBOR.
// Unknown fields are ignored for forward compatibility.
var decMode cbor.DecMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("image: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("image: CBOR decoder initialization failed: " + err.Error())
	}
}

// Encode serializes an image as a raw bytecode container.
func Encode(img *Image) ([]byte, error) {
	payload, err := encMode.Marshal(img)
	if err != nil {
		return nil, fmt.Errorf("encode class table: %w", err)
	}
	out := make([]byte, 0, len(Magic)+len(payload))
	out = append(out, Magic...)
	return append(out, payload...), nil
}

// Decode parses a raw bytecode container and checks image-level
// invariants: at least one class, non-empty unique class names.
// Method bodies are not validated here; that happens per class at
// materialization via Class.Validate.
func Decode(data []byte) (*Image, error) {
	if len(data) < len(Magic) || !bytes.Equal(data[:len(Magic)], Magic) {
		return nil, ErrCorrupt
	}
	var img Image
	if err := decMode.Unmarshal(data[len(Magic):], &img); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	if err := img.check(); err != nil {
		return nil, err
	}
	return &img, nil
}

func (img *Image) check() error {
	if len(img.Classes) == 0 {
		return fmt.Errorf("%w: no classes", ErrCorrupt)
	}
	seen := make(map[string]struct{}, len(img.Classes))
	for _, c := range img.Classes {
		if c.Name == "" {
			return fmt.Errorf("%w: unnamed class", ErrCorrupt)
		}
		if _, dup := seen[c.Name]; dup {
			return fmt.Errorf("%w: duplicate class %q", ErrCorrupt, c.Name)
		}
		seen[c.Name] = struct{}{}
	}
	return nil
}

// Lookup returns the class with the given fully-qualified name.
func (img *Image) Lookup(name string) (*Class, bool) {
	for i := range img.Classes {
		if img.Classes[i].Name == name {
			return &img.Classes[i], true
		}
	}
	return nil, false
}

// Method returns the named method on the class.
func (c *Class) Method(name string) (*Method, bool) {
	for i := range c.Methods {
		if c.Methods[i].Name == name {
			return &c.Methods[i], true
		}
	}
	return nil, false
}

// Validate checks that every method body on the class is executable:
// constant references stay inside the pool, the operand stack never
// underflows, and the body ends with a return.
func (c *Class) Validate() error {
	for _, m := range c.Methods {
		if m.Name == "" {
			return fmt.Errorf("class %q: %w: unnamed method", c.Name, ErrBadCode)
		}
		if err := validateCode(m.Code, len(c.Consts)); err != nil {
			return fmt.Errorf("class %q method %q: %w", c.Name, m.Name, err)
		}
	}
	return nil
}

func validateCode(code []Instr, consts int) error {
	if len(code) == 0 {
		return fmt.Errorf("%w: empty body", ErrBadCode)
	}
	depth := 0
	for i, in := range code {
		switch in.Op {
		case OpConst:
			if int(in.Arg) >= consts {
				return fmt.Errorf("%w: constant %d out of range", ErrBadCode, in.Arg)
			}
			depth++
		case OpResource:
			if depth < 1 {
				return fmt.Errorf("%w: stack underflow at %d", ErrBadCode, i)
			}
		case OpReturn:
			if depth < 1 {
				return fmt.Errorf("%w: return with empty stack", ErrBadCode)
			}
			if i != len(code)-1 {
				return fmt.Errorf("%w: code after return", ErrBadCode)
			}
		default:
			return fmt.Errorf("%w: unknown opcode %d", ErrBadCode, in.Op)
		}
	}
	if code[len(code)-1].Op != OpReturn {
		return fmt.Errorf("%w: missing return", ErrBadCode)
	}
	return nil
}

// Optimize verifies a raw container and produces the optimized artifact
// payload: artifact magic, SHA-256 of the raw container, then the
// zstd-compressed class table sorted by class name for lookup locality.
func Optimize(raw []byte) ([]byte, error) {
	img, err := Decode(raw)
	if err != nil {
		return nil, err
	}

	sorted := *img
	sorted.Classes = make([]Class, len(img.Classes))
	copy(sorted.Classes, img.Classes)
	sort.Slice(sorted.Classes, func(i, j int) bool {
		return sorted.Classes[i].Name < sorted.Classes[j].Name
	})

	payload, err := encMode.Marshal(&sorted)
	if err != nil {
		return nil, fmt.Errorf("encode class table: %w", err)
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1), zstd.WithLowerEncoderMem(true))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	defer enc.Close()

	sum := sha256.Sum256(raw)
	out := make([]byte, 0, len(ArtifactMagic)+len(sum))
	out = append(out, ArtifactMagic...)
	out = append(out, sum[:]...)
	return enc.EncodeAll(payload, out), nil
}

// IsArtifact reports whether data begins with a well-formed artifact
// header. Used by the artifact store to decide whether an existing
// cache file is reusable without re-reading the source.
func IsArtifact(data []byte) bool {
	return len(data) >= len(ArtifactMagic)+sha256.Size &&
		bytes.Equal(data[:len(ArtifactMagic)], ArtifactMagic)
}

// SourceSum returns the SHA-256 of the raw container recorded in an
// artifact header.
func SourceSum(data []byte) ([]byte, bool) {
	if !IsArtifact(data) {
		return nil, false
	}
	return data[len(ArtifactMagic) : len(ArtifactMagic)+sha256.Size], true
}

// DecodeArtifact parses an optimized artifact produced by Optimize.
func DecodeArtifact(data []byte) (*Image, error) {
	if !IsArtifact(data) {
		return nil, ErrCorrupt
	}
	compressed := data[len(ArtifactMagic)+sha256.Size:]

	dec, err := zstd.NewReader(nil,
		zstd.WithDecoderConcurrency(1),
		zstd.WithDecoderMaxMemory(maxDecoderMemory),
	)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	defer dec.Close()

	payload, err := dec.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}

	var img Image
	if err := decMode.Unmarshal(payload, &img); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	if err := img.check(); err != nil {
		return nil, err
	}
	return &img, nil
}
