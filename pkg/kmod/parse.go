package kmod

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"

	"github.com/ospp/modtool/pkg/kmod/debugsym"
)

// Module is a parsed module. Payload aliases the buffer given to Parse.
type Module struct {
	Header
	Payload []byte

	checksum uint32
}

// Name returns the module name without its NUL padding.
func (m *Module) Name() string {
	if i := bytes.IndexByte(m.Header.Name[:], 0); i >= 0 {
		return string(m.Header.Name[:i])
	}
	return string(m.Header.Name[:])
}

// Checksum returns the trailer value, which Parse has verified.
func (m *Module) Checksum() uint32 {
	return m.checksum
}

// Parse decodes and verifies a module. Bytes following the trailer are
// ignored.
func Parse(b []byte) (*Module, error) {
	if len(b) < 4 || binary.LittleEndian.Uint32(b) != Magic {
		return nil, ErrBadMagic
	}
	if len(b) < HeaderSize+TrailerSize {
		return nil, errors.Wrapf(ErrTruncatedModule, "%d bytes, header and trailer need %d", len(b), HeaderSize+TrailerSize)
	}
	m := new(Module)
	m.Header.get(b)
	end := uint64(HeaderSize) + uint64(m.Size)
	if uint64(len(b)) < end+TrailerSize {
		return nil, errors.Wrapf(ErrTruncatedModule, "%d bytes, need %d", len(b), end+TrailerSize)
	}
	want := binary.LittleEndian.Uint32(b[end:])
	if got := Checksum(b[:end]); got != want {
		return nil, errors.Wrapf(ErrChecksumMismatch, "expected 0x%08x, got 0x%08x", want, got)
	}
	if m.Version != Version {
		return nil, errors.Wrapf(ErrUnsupportedVersion, "version %d", m.Version)
	}
	m.Payload = b[HeaderSize:end]
	m.checksum = want
	return m, nil
}

// ReadFrom reads r to the end and parses the result.
func ReadFrom(r io.Reader) (*Module, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "read module")
	}
	return Parse(b)
}

// Payload is a decoded module payload.
type Payload interface {
	Type() Type
}

// RawPayload holds the payload of a module whose type is not known to this
// package.
type RawPayload struct {
	typ  Type
	Data []byte
}

func (p RawPayload) Type() Type { return p.typ }

// DebugSymbols is the payload of a TypeDebugSymbols module.
type DebugSymbols struct {
	*debugsym.Table
}

func (DebugSymbols) Type() Type { return TypeDebugSymbols }

// Decode interprets the payload according to the module type. Unknown types
// are returned as RawPayload without error.
func (m *Module) Decode() (Payload, error) {
	switch m.Type {
	case TypeDebugSymbols:
		t, err := debugsym.Decode(m.Payload)
		if err != nil {
			return nil, errors.Wrapf(err, "module %q", m.Name())
		}
		return DebugSymbols{Table: t}, nil
	default:
		return RawPayload{typ: m.Type, Data: m.Payload}, nil
	}
}
