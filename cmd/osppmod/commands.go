package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/ospp/modtool/pkg/kmod"
	"github.com/ospp/modtool/pkg/kmod/debugsym"
	osppcontext "github.com/ospp/modtool/pkg/ospp/context"
	"github.com/ospp/modtool/pkg/packager"
)

func newPackager(ctx context.Context, fs afero.Fs) (*packager.Packager, *packager.Writer, error) {
	w, err := packager.NewFilesystemWriter(cfg.packager.OutputPath)
	if err != nil {
		return nil, nil, err
	}
	p, err := packager.New(osppcontext.Logger(ctx), cfg.packager, fs, w, osppcontext.Registry(ctx))
	if err != nil {
		_ = w.Close()
		return nil, nil, err
	}
	return p, w, nil
}

func buildDebugSymbols(ctx context.Context, fs afero.Fs, input, name string) error {
	p, w, err := newPackager(ctx, fs)
	if err != nil {
		return err
	}
	defer w.Close()

	res, err := p.BuildDebugSymbols(ctx, input, name)
	if err != nil {
		return err
	}
	fmt.Fprintf(osppcontext.Output(ctx), "Debug symbol module written to %s\n", res.Object)
	return nil
}

func packPayload(ctx context.Context, fs afero.Fs, payloadPath, name string, typ uint8) error {
	payload, err := afero.ReadFile(fs, payloadPath)
	if err != nil {
		return errors.Wrap(err, "read payload")
	}
	p, w, err := newPackager(ctx, fs)
	if err != nil {
		return err
	}
	defer w.Close()

	res, err := p.Pack(ctx, name, kmod.Type(typ), payload)
	if err != nil {
		return err
	}
	fmt.Fprintf(osppcontext.Output(ctx), "Module written to %s\n", res.Object)
	return nil
}

func readModule(fs afero.Fs, path string) (*kmod.Module, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	m, err := kmod.ReadFrom(f)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	return m, nil
}

func inspect(ctx context.Context, fs afero.Fs, path string, withSymbols bool) error {
	m, err := readModule(fs, path)
	if err != nil {
		return err
	}
	out := osppcontext.Output(ctx)
	fmt.Fprintln(out, "module:", path)
	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Name", "Version", "Type", "Payload", "Checksum"})
	table.Append([]string{
		m.Name(),
		strconv.Itoa(int(m.Version)),
		fmt.Sprintf("%s (%d)", m.Type, uint8(m.Type)),
		humanize.Bytes(uint64(m.Size)),
		fmt.Sprintf("0x%08x", m.Checksum()),
	})
	table.Render()

	if !m.Type.Known() {
		fmt.Fprintf(out, "\t payload: %s, not decoded\n", humanize.Bytes(uint64(len(m.Payload))))
		return nil
	}
	p, err := m.Decode()
	if err != nil {
		return err
	}
	ds, ok := p.(kmod.DebugSymbols)
	if !ok {
		return nil
	}
	fmt.Fprintf(out, "\t symbols: %d, string pool: %s\n", len(ds.Entries), humanize.Bytes(uint64(ds.StrtabSize())))
	if !withSymbols {
		return nil
	}
	table = tablewriter.NewWriter(out)
	table.SetHeader([]string{"#", "Address", "Name Offset", "Name"})
	for i, e := range ds.Entries {
		table.Append([]string{
			strconv.Itoa(i),
			fmt.Sprintf("0x%08x", e.Address),
			strconv.FormatUint(uint64(e.NameOffset), 10),
			e.Name,
		})
	}
	table.Render()
	return nil
}

func lookup(ctx context.Context, fs afero.Fs, path, addr string) error {
	a, err := strconv.ParseUint(addr, 0, 32)
	if err != nil {
		return errors.Wrapf(err, "invalid address %q", addr)
	}
	m, err := readModule(fs, path)
	if err != nil {
		return err
	}
	p, err := m.Decode()
	if err != nil {
		return err
	}
	ds, ok := p.(kmod.DebugSymbols)
	if !ok {
		return errors.Errorf("%s is a %s module, not a debug symbol module", path, m.Type)
	}
	e, ok := ds.Lookup(uint32(a))
	if !ok {
		return errors.Errorf("no symbol within 0x%x bytes below 0x%08x", debugsym.MaxLookupDistance, a)
	}
	fmt.Fprintf(osppcontext.Output(ctx), "0x%08x %s+0x%x\n", a, e.Name, uint32(a)-e.Address)
	return nil
}
