// Package symbolstest builds small ELF images for tests.
package symbolstest

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
)

// Sym describes a symbol to place in .symtab.
type Sym struct {
	Name  string
	Value uint64
	Type  elf.SymType
}

// ELF returns a little-endian ELF64 executable whose .symtab holds syms in
// order. With withSymtab false the image has no .symtab section at all.
func ELF(syms []Sym, withSymtab bool) []byte {
	le := binary.LittleEndian

	var shstrtab bytes.Buffer
	shstrtab.WriteByte(0)
	name := func(s string) uint32 {
		off := uint32(shstrtab.Len())
		shstrtab.WriteString(s)
		shstrtab.WriteByte(0)
		return off
	}

	var symtab, strtab bytes.Buffer
	strtab.WriteByte(0)
	_ = binary.Write(&symtab, le, elf.Sym64{})
	for _, s := range syms {
		off := uint32(strtab.Len())
		strtab.WriteString(s.Name)
		strtab.WriteByte(0)
		_ = binary.Write(&symtab, le, elf.Sym64{
			Name:  off,
			Info:  elf.ST_INFO(elf.STB_GLOBAL, s.Type),
			Shndx: uint16(elf.SHN_ABS),
			Value: s.Value,
		})
	}

	const ehsize = 64
	var (
		body     bytes.Buffer
		sections = []elf.Section64{{}}
	)
	add := func(sh elf.Section64, data []byte) {
		sh.Off = uint64(ehsize + body.Len())
		sh.Size = uint64(len(data))
		body.Write(data)
		for body.Len()%8 != 0 {
			body.WriteByte(0)
		}
		sections = append(sections, sh)
	}

	if withSymtab {
		symtabName := name(".symtab")
		strtabName := name(".strtab")
		add(elf.Section64{
			Name:      symtabName,
			Type:      uint32(elf.SHT_SYMTAB),
			Link:      2,
			Info:      1,
			Addralign: 8,
			Entsize:   uint64(elf.Sym64Size),
		}, symtab.Bytes())
		add(elf.Section64{
			Name:      strtabName,
			Type:      uint32(elf.SHT_STRTAB),
			Addralign: 1,
		}, strtab.Bytes())
	}
	shstrtabName := name(".shstrtab")
	shstrndx := len(sections)
	add(elf.Section64{
		Name:      shstrtabName,
		Type:      uint32(elf.SHT_STRTAB),
		Addralign: 1,
	}, shstrtab.Bytes())

	hdr := elf.Header64{
		Type:      uint16(elf.ET_EXEC),
		Machine:   uint16(elf.EM_X86_64),
		Version:   uint32(elf.EV_CURRENT),
		Shoff:     uint64(ehsize + body.Len()),
		Ehsize:    ehsize,
		Shentsize: 64,
		Shnum:     uint16(len(sections)),
		Shstrndx:  uint16(shstrndx),
	}
	copy(hdr.Ident[:], elf.ELFMAG)
	hdr.Ident[elf.EI_CLASS] = byte(elf.ELFCLASS64)
	hdr.Ident[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	hdr.Ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)

	var out bytes.Buffer
	_ = binary.Write(&out, le, hdr)
	out.Write(body.Bytes())
	for _, sh := range sections {
		_ = binary.Write(&out, le, sh)
	}
	return out.Bytes()
}
