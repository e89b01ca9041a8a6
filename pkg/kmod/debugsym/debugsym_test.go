package debugsym_test

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ospp/modtool/pkg/demangle"
	"github.com/ospp/modtool/pkg/kmod/debugsym"
	"github.com/ospp/modtool/pkg/symbols"
)

func fn(addr uint64, name string) symbols.Symbol {
	return symbols.Symbol{Kind: symbols.KindFunc, Address: addr, Name: name}
}

func TestBuildScenario(t *testing.T) {
	payload, stats, err := debugsym.Build([]symbols.Symbol{
		fn(0x1000, "foo"),
		fn(0x2000, "bar"),
		fn(0x3000, "foo"),
	}, demangle.Identity)
	require.NoError(t, err)

	expected := []byte{
		3, 0, 0, 0, // entry_count
		32, 0, 0, 0, // strtab_offset = 8 + 3*8
		0x00, 0x10, 0, 0, 0, 0, 0, 0,
		0x00, 0x20, 0, 0, 4, 0, 0, 0,
		0x00, 0x30, 0, 0, 0, 0, 0, 0,
		'f', 'o', 'o', 0, 'b', 'a', 'r', 0,
	}
	assert.Equal(t, expected, payload)
	assert.Equal(t, debugsym.Stats{
		Symbols:     3,
		UniqueNames: 2,
		PayloadSize: len(expected),
	}, stats)

	tbl, err := debugsym.Decode(payload)
	require.NoError(t, err)
	assert.Equal(t, []debugsym.Entry{
		{Address: 0x1000, NameOffset: 0, Name: "foo"},
		{Address: 0x2000, NameOffset: 4, Name: "bar"},
		{Address: 0x3000, NameOffset: 0, Name: "foo"},
	}, tbl.Entries)
	assert.Equal(t, 8, tbl.StrtabSize())
}

func TestBuildFiltersAndResolves(t *testing.T) {
	calls := map[string]int{}
	r := demangle.Func(func(name string) (string, error) {
		calls[name]++
		switch name {
		case "_ZN1k4initEv", "_ZN1k4initEv.cold":
			return "k::init()", nil
		case "_Zbroken":
			return "", errors.New("cannot demangle")
		}
		return name, nil
	})

	payload, stats, err := debugsym.Build([]symbols.Symbol{
		fn(0x100, "_ZN1k4initEv"),
		{Kind: symbols.KindObject, Address: 0x9000, Name: "counter"},
		fn(0x200, "_Zbroken"),
		{Kind: symbols.KindFile, Name: "boot.S"},
		fn(0x300, "_ZN1k4initEv.cold"),
		fn(0x400, "_ZN1k4initEv"),
		fn(0x500, "_Zbroken"),
	}, r)
	require.NoError(t, err)

	assert.Equal(t, 5, stats.Symbols)
	assert.Equal(t, 2, stats.Dropped)
	assert.Equal(t, 2, stats.UniqueNames)
	assert.Equal(t, 1, stats.DemangleFailures)
	assert.Equal(t, map[string]int{"_ZN1k4initEv": 1, "_Zbroken": 1, "_ZN1k4initEv.cold": 1}, calls)

	tbl, err := debugsym.Decode(payload)
	require.NoError(t, err)
	names := make([]string, len(tbl.Entries))
	for i, e := range tbl.Entries {
		names[i] = e.Name
	}
	assert.Equal(t, []string{"k::init()", "_Zbroken", "k::init()", "k::init()", "_Zbroken"}, names)
	assert.Equal(t, tbl.Entries[0].NameOffset, tbl.Entries[2].NameOffset)
	assert.Equal(t, 1, bytes.Count(payload, []byte("k::init()\x00")))
}

func TestBuildNilResolver(t *testing.T) {
	payload, _, err := debugsym.Build([]symbols.Symbol{fn(1, "_ZN1k4initEv")}, nil)
	require.NoError(t, err)
	tbl, err := debugsym.Decode(payload)
	require.NoError(t, err)
	assert.Equal(t, "_ZN1k4initEv", tbl.Entries[0].Name)
}

func TestBuildEmpty(t *testing.T) {
	payload, stats, err := debugsym.Build(nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 0, 0, 8, 0, 0, 0}, payload)
	assert.Equal(t, 0, stats.Symbols)

	tbl, err := debugsym.Decode(payload)
	require.NoError(t, err)
	assert.Empty(t, tbl.Entries)
	_, ok := tbl.Lookup(0)
	assert.False(t, ok)
}

func TestBuildAddressOverflow(t *testing.T) {
	_, _, err := debugsym.Build([]symbols.Symbol{fn(0x1_0000_0000, "high")}, nil)
	require.ErrorIs(t, err, debugsym.ErrAddressOverflow)
}

func TestBuilderRejectsNUL(t *testing.T) {
	b := debugsym.NewBuilder()
	require.ErrorIs(t, b.Add(0, "a\x00b"), debugsym.ErrInvalidSymbol)
	assert.Equal(t, 0, b.Len())
}

func TestBuilderSize(t *testing.T) {
	b := debugsym.NewBuilder()
	require.NoError(t, b.Add(0x10, "x"))
	require.NoError(t, b.Add(0x20, "x"))
	assert.Equal(t, 2, b.Len())
	assert.Equal(t, 1, b.Unique())
	assert.Equal(t, len(b.Bytes()), b.Size())
}

func TestOffsetConsistency(t *testing.T) {
	names := []string{"a", "bb", "a", "", "ccc", "bb", "dddd", ""}
	b := debugsym.NewBuilder()
	for i, n := range names {
		require.NoError(t, b.Add(uint32(i*16), n))
	}
	payload := b.Bytes()

	le := binary.LittleEndian
	count := le.Uint32(payload)
	strtabOff := le.Uint32(payload[4:])
	require.Equal(t, uint32(len(names)), count)
	require.Equal(t, 8+8*count, strtabOff)
	require.Equal(t, strtabOff, debugsym.StrtabOffset(len(names)))

	strtab := payload[strtabOff:]
	for i := uint32(0); i < count; i++ {
		off := le.Uint32(payload[8+8*i+4:])
		if off != 0 {
			assert.Equal(t, byte(0), strtab[off-1], "entry %d does not follow a terminator", i)
		}
		end := bytes.IndexByte(strtab[off:], 0)
		require.GreaterOrEqual(t, end, 0)
		assert.Equal(t, names[i], string(strtab[off:off+uint32(end)]))
	}
	// each distinct name exactly once
	assert.Equal(t, []byte("a\x00bb\x00\x00ccc\x00dddd\x00"), strtab)
}

func TestDecodeMalformed(t *testing.T) {
	valid := func() []byte {
		b := debugsym.NewBuilder()
		require.NoError(t, b.Add(0x1000, "foo"))
		return b.Bytes()
	}
	tests := []struct {
		name   string
		mutate func([]byte) []byte
	}{
		{"short header", func(p []byte) []byte { return p[:7] }},
		{"wrong strtab offset", func(p []byte) []byte { p[4] = 24; return p }},
		{"entries past end", func(p []byte) []byte { p[0] = 9; p[4] = 80; return p }},
		{"name offset outside pool", func(p []byte) []byte { p[12] = 4; return p }},
		{"unterminated name", func(p []byte) []byte { return p[:len(p)-1] }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := debugsym.Decode(tt.mutate(valid()))
			require.ErrorIs(t, err, debugsym.ErrMalformedPayload)
		})
	}
}

func TestLookup(t *testing.T) {
	b := debugsym.NewBuilder()
	require.NoError(t, b.Add(0x3000, "third"))
	require.NoError(t, b.Add(0x1000, "first"))
	require.NoError(t, b.Add(0x2000, "second"))
	require.NoError(t, b.Add(0x2000, "second.alias"))
	tbl, err := debugsym.Decode(b.Bytes())
	require.NoError(t, err)

	tests := []struct {
		addr uint32
		name string
		ok   bool
	}{
		{0x0fff, "", false},
		{0x1000, "first", true},
		{0x1fff, "first", true},
		{0x2000, "second", true},
		{0x2abc, "second", true},
		{0x3000 + debugsym.MaxLookupDistance, "third", true},
		{0x3000 + debugsym.MaxLookupDistance + 1, "", false},
	}
	for _, tt := range tests {
		e, ok := tbl.Lookup(tt.addr)
		assert.Equal(t, tt.ok, ok, "0x%x", tt.addr)
		assert.Equal(t, tt.name, e.Name, "0x%x", tt.addr)
	}
}
