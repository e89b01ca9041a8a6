package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/version"
	"github.com/spf13/afero"
	"gopkg.in/alecthomas/kingpin.v2"

	osppcontext "github.com/ospp/modtool/pkg/ospp/context"
	"github.com/ospp/modtool/pkg/packager"
)

var cfg struct {
	verbose         bool
	configFile      string
	metricsTextfile string
	packager        packager.Config

	debugSymbols struct {
		input string
		name  string
	}
	pack struct {
		payload string
		name    string
		typ     uint8
	}
	inspect struct {
		files   []string
		symbols bool
	}
	lookup struct {
		file string
		addr string
	}
}

var (
	consoleOutput = os.Stderr
	logger        = log.NewLogfmtLogger(consoleOutput)
)

type application struct {
	app             *kingpin.Application
	configFlag      *kingpin.FlagClause
	debugSymbolsCmd *kingpin.CmdClause
	packCmd         *kingpin.CmdClause
	inspectCmd      *kingpin.CmdClause
	lookupCmd       *kingpin.CmdClause
}

func newApp() *application {
	a := &application{}
	app := kingpin.New(filepath.Base(os.Args[0]), "Builds and inspects ospp kernel modules.").UsageWriter(os.Stdout)
	app.Version(version.Print("osppmod"))
	app.HelpFlag.Short('h')
	app.Flag("verbose", "Enable verbose logging.").Short('v').Default("false").BoolVar(&cfg.verbose)
	a.configFlag = app.Flag("config.file", "YAML file with packager settings. Command line flags take precedence.")
	a.configFlag.StringVar(&cfg.configFile)
	app.Flag("metrics.textfile", "Write build metrics in the Prometheus text format to this file.").StringVar(&cfg.metricsTextfile)

	a.debugSymbolsCmd = app.Command("debug-symbols", "Generate a debug symbol module from an ELF binary.").Alias("debug_symbols")
	a.debugSymbolsCmd.Arg("input", "Input ELF file.").Required().StringVar(&cfg.debugSymbols.input)
	a.debugSymbolsCmd.Arg("name", "Module name, at most 32 ASCII characters.").Required().StringVar(&cfg.debugSymbols.name)
	cfg.packager.RegisterFlags(a.debugSymbolsCmd)

	a.packCmd = app.Command("pack", "Wrap an arbitrary payload file into a module.")
	a.packCmd.Arg("payload", "Payload file.").Required().StringVar(&cfg.pack.payload)
	a.packCmd.Arg("name", "Module name, at most 32 ASCII characters.").Required().StringVar(&cfg.pack.name)
	a.packCmd.Flag("type", "Module type.").Default("0").Uint8Var(&cfg.pack.typ)
	a.packCmd.Flag("output-path", "Directory the module is written to.").StringVar(&cfg.packager.OutputPath)

	a.inspectCmd = app.Command("inspect", "Verify modules and print their headers.")
	a.inspectCmd.Arg("file", "Module file.").Required().StringsVar(&cfg.inspect.files)
	a.inspectCmd.Flag("symbols", "Print the symbol table of debug symbol modules.").Default("false").BoolVar(&cfg.inspect.symbols)

	a.lookupCmd = app.Command("lookup", "Resolve an address using a debug symbol module.")
	a.lookupCmd.Arg("file", "Module file.").Required().StringVar(&cfg.lookup.file)
	a.lookupCmd.Arg("address", "Address, decimal or 0x-prefixed hex.").Required().StringVar(&cfg.lookup.addr)

	a.app = app
	return a
}

// loadConfigFile applies the file named by --config.file, if any, to
// cfg.packager. It runs before the real parse so explicit flags still win
// over the file, and the file wins over the defaults.
func (a *application) loadConfigFile(fs afero.Fs, args []string) error {
	pc, err := a.app.ParseContext(args)
	if err != nil {
		// reported by the real parse
		return nil
	}
	for _, el := range pc.Elements {
		if el.Clause == a.configFlag && el.Value != nil {
			loaded, err := packager.LoadConfig(fs, *el.Value)
			if err != nil {
				return err
			}
			cfg.packager = loaded
		}
	}
	return nil
}

// parse resets the packager configuration to its defaults, layers the config
// file and the command line on top and returns the selected command.
func (a *application) parse(fs afero.Fs, args []string) (string, error) {
	cfg.packager = packager.DefaultConfig()
	if err := a.loadConfigFile(fs, args); err != nil {
		return "", err
	}
	return a.app.Parse(args)
}

func main() {
	a := newApp()
	fs := afero.NewOsFs()

	parsedCmd, err := a.parse(fs, os.Args[1:])
	if err != nil {
		os.Exit(checkError(err))
	}

	if !cfg.verbose {
		logger = level.NewFilter(logger, level.AllowInfo())
	}
	reg := prometheus.NewRegistry()
	ctx := osppcontext.WithLogger(context.Background(), logger)
	ctx = osppcontext.WithRegistry(ctx, reg)
	ctx = osppcontext.WithOutput(ctx, os.Stdout)

	switch parsedCmd {
	case a.debugSymbolsCmd.FullCommand():
		err = buildDebugSymbols(ctx, fs, cfg.debugSymbols.input, cfg.debugSymbols.name)
	case a.packCmd.FullCommand():
		err = packPayload(ctx, fs, cfg.pack.payload, cfg.pack.name, cfg.pack.typ)
	case a.inspectCmd.FullCommand():
		for _, file := range cfg.inspect.files {
			if err = inspect(ctx, fs, file, cfg.inspect.symbols); err != nil {
				break
			}
		}
	case a.lookupCmd.FullCommand():
		err = lookup(ctx, fs, cfg.lookup.file, cfg.lookup.addr)
	default:
		level.Error(logger).Log("msg", "unknown command", "cmd", parsedCmd)
	}
	if err == nil && cfg.metricsTextfile != "" {
		err = prometheus.WriteToTextfile(cfg.metricsTextfile, reg)
	}
	os.Exit(checkError(err))
}

func checkError(err error) int {
	if err == nil {
		return 0
	}
	fmt.Fprintf(os.Stderr, "%s: %v\n", color.RedString("error"), err)
	return 1
}
