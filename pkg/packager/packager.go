// Package packager builds ospp modules from binaries and stores them.
package packager

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"

	"github.com/ospp/modtool/pkg/demangle"
	"github.com/ospp/modtool/pkg/kmod"
	"github.com/ospp/modtool/pkg/kmod/debugsym"
	"github.com/ospp/modtool/pkg/symbols"
)

type Packager struct {
	logger   log.Logger
	fs       afero.Fs
	writer   *Writer
	resolver demangle.Resolver
	metrics  *metrics
}

// Result describes a module that has been written.
type Result struct {
	Module   string
	Object   string
	Type     kmod.Type
	Size     int
	Checksum uint32
	Symbols  debugsym.Stats
}

// New returns a Packager reading binaries from fs and storing modules with
// writer.
func New(logger log.Logger, cfg Config, fs afero.Fs, writer *Writer, reg prometheus.Registerer) (*Packager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	r, err := cfg.Resolver()
	if err != nil {
		return nil, err
	}
	return &Packager{
		logger:   logger,
		fs:       fs,
		writer:   writer,
		resolver: r,
		metrics:  newMetrics(reg),
	}, nil
}

// BuildDebugSymbols packs the function symbols of the ELF binary at input
// into a debug symbol module called name. Nothing is written unless every
// step succeeds.
func (p *Packager) BuildDebugSymbols(ctx context.Context, input, name string) (*Result, error) {
	if err := checkName(name); err != nil {
		p.metrics.modulesBuilt.WithLabelValues(kmod.TypeDebugSymbols.String(), statusFailure).Inc()
		return nil, err
	}
	syms, err := p.readSymbols(input)
	if err != nil {
		p.metrics.modulesBuilt.WithLabelValues(kmod.TypeDebugSymbols.String(), statusFailure).Inc()
		return nil, err
	}
	payload, stats, err := debugsym.Build(syms, p.resolver, debugsym.WithLogger(p.logger))
	if err != nil {
		p.metrics.modulesBuilt.WithLabelValues(kmod.TypeDebugSymbols.String(), statusFailure).Inc()
		return nil, errors.Wrapf(err, "build debug symbols from %s", input)
	}
	p.metrics.symbolsPacked.Add(float64(stats.Symbols))
	p.metrics.symbolsDropped.Add(float64(stats.Dropped))
	p.metrics.demangleFailures.Add(float64(stats.DemangleFailures))
	if stats.DemangleFailures > 0 {
		level.Warn(p.logger).Log("msg", "some symbols could not be demangled and keep their raw names", "count", stats.DemangleFailures)
	}

	res, err := p.Pack(ctx, name, kmod.TypeDebugSymbols, payload)
	if err != nil {
		return nil, err
	}
	res.Symbols = stats
	level.Info(p.logger).Log(
		"msg", "debug symbol module written",
		"path", res.Object,
		"symbols", stats.Symbols,
		"unique_names", stats.UniqueNames,
	)
	return res, nil
}

// Pack wraps payload into a module and writes it.
func (p *Packager) Pack(ctx context.Context, name string, typ kmod.Type, payload []byte) (*Result, error) {
	status := statusFailure
	defer func() {
		p.metrics.modulesBuilt.WithLabelValues(typ.String(), status).Inc()
	}()

	if err := checkName(name); err != nil {
		return nil, err
	}
	module, err := kmod.Pack(name, typ, payload)
	if err != nil {
		return nil, err
	}
	crc := binary.LittleEndian.Uint32(module[len(module)-kmod.TrailerSize:])
	level.Info(p.logger).Log("msg", "module packed", "module", name, "type", typ, "size", len(module), "crc32", fmt.Sprintf("%08x", crc))

	object, err := p.writer.Write(ctx, name, module)
	if err != nil {
		return nil, err
	}
	status = statusSuccess
	p.metrics.moduleBytes.Observe(float64(len(module)))
	return &Result{
		Module:   name,
		Object:   object,
		Type:     typ,
		Size:     len(module),
		Checksum: crc,
	}, nil
}

// checkName validates name both as a module name and as an object name.
func checkName(name string) error {
	if _, err := kmod.EncodeName(name); err != nil {
		return err
	}
	return ValidateObjectName(name)
}

func (p *Packager) readSymbols(input string) (syms []symbols.Symbol, err error) {
	src, err := symbols.OpenELF(p.fs, input)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := src.Close(); cerr != nil {
			err = multierror.Append(err, errors.Wrapf(cerr, "close %s", input)).ErrorOrNil()
			syms = nil
		}
	}()
	return src.Symbols()
}
