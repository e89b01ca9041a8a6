package debugsym

import (
	"math"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/ospp/modtool/pkg/demangle"
	"github.com/ospp/modtool/pkg/symbols"
)

// Option configures Build.
type Option func(*options)

type options struct {
	logger log.Logger
}

// WithLogger sets the logger used to report names that could not be
// demangled.
func WithLogger(l log.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// Stats describes a finished build.
type Stats struct {
	Symbols          int // function symbols in the table
	Dropped          int // non-function symbols skipped
	UniqueNames      int
	DemangleFailures int
	PayloadSize      int
}

// Build encodes the function symbols of syms, in input order. Each distinct
// raw name is passed to r once; when r fails the raw name is used instead.
// A nil r keeps raw names.
func Build(syms []symbols.Symbol, r demangle.Resolver, opts ...Option) ([]byte, Stats, error) {
	o := options{logger: log.NewNopLogger()}
	for _, opt := range opts {
		opt(&o)
	}
	if r == nil {
		r = demangle.Identity
	}

	funcs := lo.Filter(syms, func(s symbols.Symbol, _ int) bool {
		return s.Kind == symbols.KindFunc
	})

	var (
		stats    = Stats{Dropped: len(syms) - len(funcs)}
		resolved = make(map[string]string, len(funcs))
		b        = NewBuilder()
	)
	for _, s := range funcs {
		if s.Address > math.MaxUint32 {
			return nil, Stats{}, errors.Wrapf(ErrAddressOverflow, "symbol %q at 0x%x", s.Name, s.Address)
		}
		name, ok := resolved[s.Name]
		if !ok {
			var err error
			name, err = r.Demangle(s.Name)
			if err != nil {
				level.Debug(o.logger).Log("msg", "failed to demangle symbol, keeping raw name", "symbol", s.Name, "err", err)
				stats.DemangleFailures++
				name = s.Name
			}
			resolved[s.Name] = name
		}
		if err := b.Add(uint32(s.Address), name); err != nil {
			return nil, Stats{}, err
		}
	}

	payload := b.Bytes()
	stats.Symbols = b.Len()
	stats.UniqueNames = b.Unique()
	stats.PayloadSize = len(payload)
	return payload, stats, nil
}
