// stegpack hides a file inside a lossless image and recovers it again.
//
// The file is framed with its name and size, then written one bit per
// sample into the least significant bits of the image's BGR samples. The
// result must be kept in a lossless format (PNG, BMP or TIFF); any lossy
// re-encoding destroys the hidden data.
//
// Subcommands:
//
//	stegpack hide --image cover.png --file secret.pdf --out stego.png
//	stegpack reveal --image stego.png [--out-dir DIR]
//	stegpack capacity --image cover.png [--name secret.pdf]
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/justicz/stegpack/internal/config"
)

// version is set at link time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		var coder interface{ ExitCode() int }
		if errors.As(err, &coder) {
			os.Exit(coder.ExitCode())
		}
		os.Exit(1)
	}
}

// usageError marks errors caused by bad invocation
type usageError struct {
	err error
}

func usagef(format string, args ...interface{}) error {
	return &usageError{err: fmt.Errorf(format, args...)}
}

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }
func (e *usageError) ExitCode() int { return 2 }

// command is one subcommand of stegpack
type command struct {
	name    string
	summary string
	run     func(args []string, stdout, stderr io.Writer) error
}

var commands = []command{
	{"hide", "embed a file in a cover image", runHide},
	{"reveal", "recover a file hidden in an image", runReveal},
	{"capacity", "report how much an image can hold", runCapacity},
}

// environment carries what every subcommand needs
type environment struct {
	stdout io.Writer
	stderr io.Writer
	config config.Config
	logger *slog.Logger
}

// commonFlags are accepted by every subcommand
type commonFlags struct {
	configPath string
	logLevel   string
}

func (c *commonFlags) add(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&c.configPath, "config", "", "path to YAML config file (default: $"+config.EnvVar+")")
	flagSet.StringVar(&c.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
}

// setup loads configuration and builds the logger for a subcommand
func (c *commonFlags) setup(stdout, stderr io.Writer) (*environment, error) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return nil, err
	}
	if c.logLevel != "" {
		cfg.Log.Level = c.logLevel
		if err := cfg.Validate(); err != nil {
			return nil, &usageError{err: err}
		}
	}

	logger, err := cfg.Log.NewLogger(stderr)
	if err != nil {
		return nil, err
	}

	return &environment{
		stdout: stdout,
		stderr: stderr,
		config: cfg,
		logger: logger,
	}, nil
}

func run(args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		printUsage(stderr)
		return usagef("no subcommand given")
	}

	switch args[0] {
	case "--version", "version":
		fmt.Fprintf(stdout, "stegpack %s\n", version)
		return nil
	case "-h", "--help", "help":
		printUsage(stdout)
		return nil
	}

	for _, cmd := range commands {
		if cmd.name == args[0] {
			return cmd.run(args[1:], stdout, stderr)
		}
	}

	printUsage(stderr)
	return usagef("unknown subcommand %q", args[0])
}

// parseFlags parses a subcommand's flags, returning done when help was
// requested and nothing else should happen
func parseFlags(flagSet *pflag.FlagSet, args []string, out io.Writer) (done bool, err error) {
	flagSet.SetOutput(out)
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return true, nil
		}
		return false, &usageError{err: err}
	}
	if flagSet.NArg() > 0 {
		return false, usagef("unexpected argument: %s", flagSet.Arg(0))
	}
	return false, nil
}

func printUsage(w io.Writer) {
	fmt.Fprintf(w, `stegpack hides a file in the least significant bits of an image.

Usage:
  stegpack <command> [flags]

Commands:
`)
	for _, cmd := range commands {
		fmt.Fprintf(w, "  %-10s %s\n", cmd.name, cmd.summary)
	}
	fmt.Fprintf(w, `
Run "stegpack <command> --help" for the flags of a command.
`)
}
