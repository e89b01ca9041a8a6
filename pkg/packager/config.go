package packager

import (
	"bytes"
	"fmt"
	"io"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"gopkg.in/alecthomas/kingpin.v2"
	"gopkg.in/yaml.v3"

	"github.com/ospp/modtool/pkg/demangle"
)

const (
	DemanglerNative = "native"
	DemanglerExec   = "exec"
	DemanglerNone   = "none"
)

type Config struct {
	OutputPath        string `yaml:"output_path"`
	Demangler         string `yaml:"demangler"`
	DemangleStyle     string `yaml:"demangle_style"`
	DemangleTool      string `yaml:"demangle_tool"`
	DemangleCacheSize int    `yaml:"demangle_cache_size" category:"advanced"`
}

// DefaultConfig returns the configuration used when no flags or file are
// given.
func DefaultConfig() Config {
	return Config{
		OutputPath:        ".",
		Demangler:         DemanglerNative,
		DemangleStyle:     string(demangle.StyleNone),
		DemangleTool:      demangle.DefaultTool,
		DemangleCacheSize: 4096,
	}
}

// FlagRegisterer is implemented by kingpin applications and commands.
type FlagRegisterer interface {
	Flag(name, help string) *kingpin.FlagClause
}

// RegisterFlags binds the configuration to f. Flags carry no kingpin default,
// so values already in cfg, from DefaultConfig or a config file, are only
// replaced by flags given on the command line.
func (cfg *Config) RegisterFlags(f FlagRegisterer) {
	d := DefaultConfig()
	f.Flag("output-path", fmt.Sprintf("Directory the module is written to. (default: %s)", d.OutputPath)).StringVar(&cfg.OutputPath)
	f.Flag("demangler", fmt.Sprintf("How symbol names are demangled: exec, native or none. (default: %s)", d.Demangler)).EnumVar(&cfg.Demangler, DemanglerExec, DemanglerNative, DemanglerNone)
	f.Flag("demangle.style", "Parts of demangled names kept by the native demangler: none, simplified, templates or full.").StringVar(&cfg.DemangleStyle)
	f.Flag("demangle.tool", fmt.Sprintf("External demangler used with --demangler=exec. (default: %s)", d.DemangleTool)).StringVar(&cfg.DemangleTool)
	f.Flag("demangle.cache-size", fmt.Sprintf("Number of demangled names kept in memory, 0 disables the cache. (default: %d)", d.DemangleCacheSize)).IntVar(&cfg.DemangleCacheSize)
}

func (cfg *Config) Validate() error {
	switch cfg.Demangler {
	case DemanglerExec, DemanglerNative, DemanglerNone:
	default:
		return fmt.Errorf("invalid demangler %q, must be one of %s, %s, %s", cfg.Demangler, DemanglerExec, DemanglerNative, DemanglerNone)
	}
	if _, err := demangle.ParseStyle(cfg.DemangleStyle); err != nil {
		return err
	}
	if cfg.Demangler == DemanglerExec && cfg.DemangleTool == "" {
		return fmt.Errorf("demangle tool must be set when using the exec demangler")
	}
	if cfg.DemangleCacheSize < 0 {
		return fmt.Errorf("invalid demangle cache size %d, must not be negative", cfg.DemangleCacheSize)
	}
	return nil
}

// Resolver builds the name resolver described by cfg.
func (cfg *Config) Resolver() (demangle.Resolver, error) {
	var r demangle.Resolver
	switch cfg.Demangler {
	case DemanglerNone:
		return demangle.Identity, nil
	case DemanglerNative:
		style, err := demangle.ParseStyle(cfg.DemangleStyle)
		if err != nil {
			return nil, err
		}
		r = demangle.NewNative(style)
	case DemanglerExec:
		r = demangle.NewExec(cfg.DemangleTool)
	default:
		return nil, fmt.Errorf("invalid demangler %q", cfg.Demangler)
	}
	if cfg.DemangleCacheSize == 0 {
		return r, nil
	}
	return demangle.NewCached(r, cfg.DemangleCacheSize)
}

// LoadConfig reads a YAML file on top of the defaults. Unknown fields are
// rejected.
func LoadConfig(fs afero.Fs, path string) (Config, error) {
	cfg := DefaultConfig()
	b, err := afero.ReadFile(fs, path)
	if err != nil {
		return cfg, errors.Wrap(err, "read config file")
	}
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return cfg, errors.Wrapf(err, "parse config file %s", path)
	}
	return cfg, cfg.Validate()
}
