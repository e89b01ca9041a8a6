package kmod

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
)

// EncodeName validates name and returns it as a NUL-padded name field. Names
// longer than NameSize bytes are rejected rather than truncated.
func EncodeName(name string) ([NameSize]byte, error) {
	var b [NameSize]byte
	for i := 0; i < len(name); i++ {
		if name[i] >= 0x80 {
			return b, errors.Wrapf(ErrInvalidName, "%q is not ASCII", name)
		}
	}
	if len(name) > NameSize {
		return b, errors.Wrapf(ErrInvalidName, "%q is %d bytes, max %d", name, len(name), NameSize)
	}
	copy(b[:], name)
	return b, nil
}

// Pack wraps payload into a module named name. The returned slice is freshly
// allocated; payload is not retained or modified.
func Pack(name string, typ Type, payload []byte) ([]byte, error) {
	n, err := EncodeName(name)
	if err != nil {
		return nil, err
	}
	if uint64(len(payload)) > math.MaxUint32 {
		return nil, errors.Wrapf(ErrPayloadTooLarge, "%d bytes", len(payload))
	}
	h := Header{
		Magic:   Magic,
		Name:    n,
		Version: Version,
		Type:    typ,
		Size:    uint32(len(payload)),
	}

	buf := make([]byte, HeaderSize+len(payload)+TrailerSize)
	h.put(buf)
	copy(buf[HeaderSize:], payload)
	end := HeaderSize + len(payload)
	binary.LittleEndian.PutUint32(buf[end:], Checksum(buf[:end]))
	return buf, nil
}

func (h *Header) put(b []byte) {
	le := binary.LittleEndian
	le.PutUint32(b[0:], h.Magic)
	copy(b[4:4+NameSize], h.Name[:])
	b[36] = h.Version
	b[37] = byte(h.Type)
	le.PutUint32(b[38:], h.Size)
}

func (h *Header) get(b []byte) {
	le := binary.LittleEndian
	h.Magic = le.Uint32(b[0:])
	copy(h.Name[:], b[4:4+NameSize])
	h.Version = b[36]
	h.Type = Type(b[37])
	h.Size = le.Uint32(b[38:])
}
