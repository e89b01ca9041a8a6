// Package kmod implements the ospp module container: a fixed header, an
// opaque payload and a CRC-32 trailer covering both.
//
// Layout, all integers little-endian:
//
//	offset 0        magic    uint32 ('OSPP', 0x4f535050)
//	offset 4        name     [32]byte, ASCII, NUL-padded
//	offset 36       version  uint8
//	offset 37       type     uint8
//	offset 38       size     uint32, payload length
//	offset 42       payload  [size]byte
//	offset 42+size  checksum uint32
package kmod

import (
	"hash/crc32"

	"github.com/pkg/errors"
)

const (
	// Magic identifies an ospp module ("OSPP" read as a little-endian uint32).
	Magic uint32 = 0x4f535050

	// Version is the latest container revision.
	Version uint8 = 1

	// NameSize is the width of the name field.
	NameSize = 32

	// HeaderSize is the encoded size of Header.
	HeaderSize = 4 + NameSize + 1 + 1 + 4

	// TrailerSize is the size of the checksum appended after the payload.
	TrailerSize = 4

	// checksumSeed is the value the CRC register is continued from. The
	// kernel loader starts from all-ones, so the result differs from
	// crc32.ChecksumIEEE.
	checksumSeed uint32 = 0xffffffff
)

var (
	ErrInvalidName        = errors.New("invalid module name")
	ErrPayloadTooLarge    = errors.New("payload too large")
	ErrBadMagic           = errors.New("bad module magic")
	ErrTruncatedModule    = errors.New("truncated module")
	ErrChecksumMismatch   = errors.New("module checksum mismatch")
	ErrUnsupportedVersion = errors.New("unsupported module version")
)

// Type selects how the payload of a module is interpreted.
type Type uint8

const (
	TypeDebugSymbols Type = 0
)

func (t Type) String() string {
	switch t {
	case TypeDebugSymbols:
		return "debug_symbols"
	default:
		return "unknown"
	}
}

// Known reports whether the payload of this type can be decoded.
func (t Type) Known() bool {
	return t == TypeDebugSymbols
}

// Header is the fixed-size module header.
type Header struct {
	Magic   uint32
	Name    [NameSize]byte
	Version uint8
	Type    Type
	Size    uint32
}

// Checksum returns the module checksum of b.
func Checksum(b []byte) uint32 {
	return crc32.Update(checksumSeed, crc32.IEEETable, b)
}
