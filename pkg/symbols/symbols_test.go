package symbols_test

import (
	"debug/elf"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ospp/modtool/pkg/symbols"
	"github.com/ospp/modtool/pkg/symbols/symbolstest"
)

func writeFile(t *testing.T, fs afero.Fs, path string, data []byte) {
	t.Helper()
	require.NoError(t, afero.WriteFile(fs, path, data, 0o644))
}

func TestELFSource(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/kernel.elf", symbolstest.ELF([]symbolstest.Sym{
		{Name: "_ZN1k4initEv", Value: 0x1000, Type: elf.STT_FUNC},
		{Name: "counter", Value: 0x8000, Type: elf.STT_OBJECT},
		{Name: "main", Value: 0x2000, Type: elf.STT_FUNC},
		{Name: "boot.S", Value: 0, Type: elf.STT_FILE},
	}, true))

	src, err := symbols.OpenELF(fs, "/kernel.elf")
	require.NoError(t, err)
	defer src.Close()

	syms, err := src.Symbols()
	require.NoError(t, err)
	assert.Equal(t, []symbols.Symbol{
		{Kind: symbols.KindFunc, Address: 0x1000, Name: "_ZN1k4initEv"},
		{Kind: symbols.KindObject, Address: 0x8000, Name: "counter"},
		{Kind: symbols.KindFunc, Address: 0x2000, Name: "main"},
		{Kind: symbols.KindFile, Address: 0, Name: "boot.S"},
	}, syms)
}

func TestELFSourceMissingSymtab(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/stripped.elf", symbolstest.ELF(nil, false))

	src, err := symbols.OpenELF(fs, "/stripped.elf")
	require.NoError(t, err)
	defer src.Close()

	_, err = src.Symbols()
	require.ErrorIs(t, err, symbols.ErrMissingSymbolTable)
}

func TestOpenELFErrors(t *testing.T) {
	fs := afero.NewMemMapFs()
	_, err := symbols.OpenELF(fs, "/nope")
	require.Error(t, err)

	writeFile(t, fs, "/garbage", []byte("definitely not an ELF file"))
	_, err = symbols.OpenELF(fs, "/garbage")
	require.Error(t, err)
	require.NotErrorIs(t, err, symbols.ErrMissingSymbolTable)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "func", symbols.KindFunc.String())
	assert.Equal(t, "other", symbols.Kind(42).String())
}
