// Command coroinst assembles, instruments, inspects and runs classes for
// the resumable runtime.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/resumable/coroutine"
	"github.com/wippyai/resumable/instrument"
	"github.com/wippyai/resumable/vm"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#90EE90"))

	skipStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type options struct {
	classPath     []string
	debug         bool
	verbose       bool
	allowMonitors bool
	allowBlocking bool
	corePrefixes  []string
	check         bool

	log   *zap.Logger
	color bool
}

func main() {
	opts := &options{}
	root := &cobra.Command{
		Use:           "coroinst",
		Short:         "Suspend/resume instrumentation for compiled classes",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = opts.log.Sync()
		},
	}

	flags := root.PersistentFlags()
	flags.StringSliceVar(&opts.classPath, "cp", []string{"."}, "class path directories")
	flags.BoolVar(&opts.debug, "debug", false, "debug diagnostics and development logging")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "report every instrumented method")
	flags.BoolVar(&opts.allowMonitors, "allow-monitors", false, "allow synchronization in suspendable methods")
	flags.BoolVar(&opts.allowBlocking, "allow-blocking", false, "allow calls to blocking methods in suspendable methods")
	flags.StringSliceVar(&opts.corePrefixes, "core-prefix", nil, "opaque package prefixes (default core/)")
	flags.BoolVar(&opts.check, "check", false, "validate every rewritten method")

	root.AddCommand(
		newInstrumentCmd(opts),
		newAsmCmd(opts),
		newDisCmd(opts),
		newRunCmd(opts),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error: "+err.Error()))
		os.Exit(1)
	}
}

func (o *options) setup() error {
	var err error
	if o.debug {
		o.log, err = zap.NewDevelopment()
	} else {
		o.log, err = zap.NewProduction()
	}
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	instrument.SetLogger(o.log)
	vm.SetLogger(o.log)
	coroutine.SetLogger(o.log)

	o.color = term.IsTerminal(int(os.Stdout.Fd()))
	return nil
}

func (o *options) newClassPath() *vm.ClassPath {
	dirs := make([]string, len(o.classPath))
	for i, d := range o.classPath {
		dirs[i] = filepath.Clean(d)
	}
	return vm.NewClassPath(dirs...)
}

func (o *options) newInstrumenter(r instrument.Resolver) *instrument.Instrumenter {
	return instrument.New(instrument.Config{
		Resolver:      r,
		Logger:        o.log,
		CorePrefixes:  o.corePrefixes,
		AllowMonitors: o.allowMonitors,
		AllowBlocking: o.allowBlocking,
		Verbose:       o.verbose,
		Debug:         o.debug,
		Check:         o.check,
	})
}

// render applies style only when stdout is a terminal.
func (o *options) render(style lipgloss.Style, s string) string {
	if !o.color {
		return s
	}
	return style.Render(s)
}
