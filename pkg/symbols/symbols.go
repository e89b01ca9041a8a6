// Package symbols reads symbol records from compiled binaries.
package symbols

import (
	"debug/elf"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// ErrMissingSymbolTable is returned when a binary carries no .symtab section.
var ErrMissingSymbolTable = errors.New("no symbol table found")

// Kind classifies a symbol.
type Kind uint8

const (
	KindOther Kind = iota
	KindFunc
	KindObject
	KindSection
	KindFile
)

func (k Kind) String() string {
	switch k {
	case KindFunc:
		return "func"
	case KindObject:
		return "object"
	case KindSection:
		return "section"
	case KindFile:
		return "file"
	default:
		return "other"
	}
}

// Symbol is a single symbol table record. Name is the raw, possibly mangled,
// name.
type Symbol struct {
	Kind    Kind
	Address uint64
	Name    string
}

// Source provides symbols in table order.
type Source interface {
	Symbols() ([]Symbol, error)
}

// Static is a Source backed by a slice.
type Static []Symbol

func (s Static) Symbols() ([]Symbol, error) {
	return s, nil
}

func kindOf(info byte) Kind {
	switch elf.ST_TYPE(info) {
	case elf.STT_FUNC:
		return KindFunc
	case elf.STT_OBJECT:
		return KindObject
	case elf.STT_SECTION:
		return KindSection
	case elf.STT_FILE:
		return KindFile
	default:
		return KindOther
	}
}

// ELFSource reads the .symtab section of an ELF file.
type ELFSource struct {
	path string
	file afero.File
	elf  *elf.File
}

// OpenELF opens path on fs. The caller must Close the returned source.
func OpenELF(fs afero.Fs, path string) (*ELFSource, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open binary")
	}
	e, err := elf.NewFile(f)
	if err != nil {
		_ = f.Close()
		return nil, errors.Wrapf(err, "parse ELF %s", path)
	}
	return &ELFSource{path: path, file: f, elf: e}, nil
}

// Symbols returns the records of .symtab. Dynamic symbols are not included.
func (s *ELFSource) Symbols() ([]Symbol, error) {
	if s.elf.Section(".symtab") == nil {
		return nil, errors.Wrap(ErrMissingSymbolTable, s.path)
	}
	syms, err := s.elf.Symbols()
	if err != nil {
		if errors.Is(err, elf.ErrNoSymbols) {
			return nil, errors.Wrap(ErrMissingSymbolTable, s.path)
		}
		return nil, errors.Wrapf(err, "read symbols from %s", s.path)
	}
	res := make([]Symbol, len(syms))
	for i, sym := range syms {
		res[i] = Symbol{
			Kind:    kindOf(sym.Info),
			Address: sym.Value,
			Name:    sym.Name,
		}
	}
	return res, nil
}

func (s *ELFSource) Close() error {
	return s.file.Close()
}
