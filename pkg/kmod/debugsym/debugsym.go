// Package debugsym implements the debug symbol payload of ospp modules: a
// table of function addresses whose names live in a deduplicated pool of
// NUL-terminated strings.
//
//	entry_count   uint32
//	strtab_offset uint32  (from the start of the payload)
//	entries       [entry_count]{address uint32, name_offset uint32}
//	strtab        NUL-terminated UTF-8 strings, each stored once
package debugsym

import (
	"bytes"
	"encoding/binary"
	"strings"

	"github.com/pkg/errors"
)

const (
	headerSize = 8
	entrySize  = 8

	// MaxLookupDistance is how far past a symbol's address Lookup still
	// attributes an address to it.
	MaxLookupDistance = 0x1000
)

var (
	ErrAddressOverflow  = errors.New("symbol address does not fit in 32 bits")
	ErrInvalidSymbol    = errors.New("invalid symbol name")
	ErrMalformedPayload = errors.New("malformed debug symbol payload")
)

// Entry is a single function symbol.
type Entry struct {
	Address    uint32
	NameOffset uint32
	Name       string
}

// StrtabOffset returns where the string pool starts in a payload holding n
// entries.
func StrtabOffset(n int) uint32 {
	return uint32(headerSize + n*entrySize)
}

// Builder accumulates entries and the string pool. The zero value is not
// usable; use NewBuilder.
type Builder struct {
	entries []Entry
	strtab  []byte
	offsets map[string]uint32
}

func NewBuilder() *Builder {
	return &Builder{offsets: make(map[string]uint32)}
}

// Add appends an entry. A name already in the pool reuses its offset.
func (b *Builder) Add(addr uint32, name string) error {
	if strings.IndexByte(name, 0) >= 0 {
		return errors.Wrapf(ErrInvalidSymbol, "%q contains NUL", name)
	}
	off, ok := b.offsets[name]
	if !ok {
		off = uint32(len(b.strtab))
		b.offsets[name] = off
		b.strtab = append(b.strtab, name...)
		b.strtab = append(b.strtab, 0)
	}
	b.entries = append(b.entries, Entry{Address: addr, NameOffset: off, Name: name})
	return nil
}

// Len returns the number of entries.
func (b *Builder) Len() int { return len(b.entries) }

// Unique returns the number of distinct names in the pool.
func (b *Builder) Unique() int { return len(b.offsets) }

// Size returns the encoded payload size.
func (b *Builder) Size() int {
	return headerSize + len(b.entries)*entrySize + len(b.strtab)
}

// Bytes encodes the payload.
func (b *Builder) Bytes() []byte {
	buf := make([]byte, b.Size())
	le := binary.LittleEndian
	le.PutUint32(buf[0:], uint32(len(b.entries)))
	le.PutUint32(buf[4:], StrtabOffset(len(b.entries)))
	p := buf[headerSize:]
	for _, e := range b.entries {
		le.PutUint32(p[0:], e.Address)
		le.PutUint32(p[4:], e.NameOffset)
		p = p[entrySize:]
	}
	copy(p, b.strtab)
	return buf
}

// Table is a decoded debug symbol payload.
type Table struct {
	Entries []Entry
	strtab  []byte
}

// Decode parses a debug symbol payload. Names are copied out of p.
func Decode(p []byte) (*Table, error) {
	if len(p) < headerSize {
		return nil, errors.Wrapf(ErrMalformedPayload, "payload is %d bytes, header needs %d", len(p), headerSize)
	}
	le := binary.LittleEndian
	count := le.Uint32(p[0:])
	strtabOff := le.Uint32(p[4:])
	want := uint64(headerSize) + uint64(count)*entrySize
	if uint64(strtabOff) != want {
		return nil, errors.Wrapf(ErrMalformedPayload, "strtab offset %d, expected %d for %d entries", strtabOff, want, count)
	}
	if uint64(len(p)) < want {
		return nil, errors.Wrapf(ErrMalformedPayload, "payload is %d bytes, %d entries need %d", len(p), count, want)
	}
	strtab := p[strtabOff:]
	t := &Table{
		Entries: make([]Entry, count),
		strtab:  strtab,
	}
	names := make(map[uint32]string)
	ep := p[headerSize:strtabOff]
	for i := range t.Entries {
		e := &t.Entries[i]
		e.Address = le.Uint32(ep[0:])
		e.NameOffset = le.Uint32(ep[4:])
		ep = ep[entrySize:]
		name, ok := names[e.NameOffset]
		if !ok {
			s, err := cstring(strtab, e.NameOffset)
			if err != nil {
				return nil, errors.Wrapf(err, "entry %d", i)
			}
			name = s
			names[e.NameOffset] = s
		}
		e.Name = name
	}
	return t, nil
}

func cstring(strtab []byte, off uint32) (string, error) {
	if uint64(off) >= uint64(len(strtab)) {
		return "", errors.Wrapf(ErrMalformedPayload, "name offset %d outside string pool of %d bytes", off, len(strtab))
	}
	n := bytes.IndexByte(strtab[off:], 0)
	if n < 0 {
		return "", errors.Wrapf(ErrMalformedPayload, "name at offset %d is not terminated", off)
	}
	return string(strtab[off : off+uint32(n)]), nil
}

// StrtabSize returns the size of the string pool in bytes.
func (t *Table) StrtabSize() int { return len(t.strtab) }

// Lookup returns the entry closest below or at addr, provided addr is at most
// MaxLookupDistance bytes past it. Ties go to the first entry.
func (t *Table) Lookup(addr uint32) (Entry, bool) {
	var (
		best     = -1
		bestDist uint32
	)
	for i, e := range t.Entries {
		dist := addr - e.Address
		if best < 0 || dist < bestDist {
			best, bestDist = i, dist
		}
	}
	if best < 0 || bestDist > MaxLookupDistance {
		return Entry{}, false
	}
	return t.Entries[best], true
}
