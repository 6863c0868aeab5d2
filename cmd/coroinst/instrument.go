package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/wippyai/resumable/instrument"
	"github.com/wippyai/resumable/vm"
)

func newInstrumentCmd(opts *options) *cobra.Command {
	var outDir string
	cmd := &cobra.Command{
		Use:   "instrument [class...]",
		Short: "Instrument classes from the class path",
		Long: `Instrument rewrites the suspendable methods of the named classes, or of
every class on the class path when none are named, and writes them to the
output directory. Methods that cannot be instrumented keep their original
body; the command then exits with status 1.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cp := opts.newClassPath()
			names := args
			if len(names) == 0 {
				var err error
				if names, err = cp.Names(); err != nil {
					return err
				}
			}
			return runInstrument(opts, cp, names, outDir)
		},
	}
	cmd.Flags().StringVarP(&outDir, "out", "o", "instrumented", "output directory")
	return cmd
}

func runInstrument(opts *options, cp *vm.ClassPath, names []string, outDir string) error {
	in := opts.newInstrumenter(cp)

	var classes, methods, failures int
	for _, name := range names {
		data, err := cp.Resolve(name)
		if err != nil {
			return err
		}
		out, report, err := in.Bytes(data)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		printReport(opts, report)

		if report.Changed() {
			classes++
		}
		methods += len(report.Instrumented)
		failures += len(report.Failures)

		path := filepath.Join(outDir, filepath.FromSlash(name)+vm.ClassExt)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(path, out, 0o644); err != nil {
			return err
		}
	}

	fmt.Printf("%d classes, %d methods instrumented, %d failures\n", classes, methods, failures)
	if failures > 0 {
		return fmt.Errorf("%d method(s) could not be instrumented", failures)
	}
	return nil
}

func printReport(opts *options, r *instrument.Report) {
	if !r.Changed() && len(r.Failures) == 0 && !opts.verbose {
		return
	}
	fmt.Println(opts.render(titleStyle, r.Class))
	for _, m := range r.Instrumented {
		fmt.Println("  " + opts.render(okStyle, "instrumented ") + m)
	}
	for _, m := range r.Skipped {
		fmt.Println("  " + opts.render(skipStyle, "skipped      ") + m)
	}
	for _, f := range r.Failures {
		fmt.Println("  " + opts.render(errorStyle, "failed       ") + f.Method + ": " + f.Err.Error())
	}
}
