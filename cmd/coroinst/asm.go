package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wippyai/resumable/asm"
	"github.com/wippyai/resumable/classfile"
	"github.com/wippyai/resumable/vm"
)

func newAsmCmd(opts *options) *cobra.Command {
	var outDir string
	cmd := &cobra.Command{
		Use:   "asm file...",
		Short: "Assemble class sources into encoded classes",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, file := range args {
				src, err := os.ReadFile(file)
				if err != nil {
					return err
				}
				classes, err := asm.AssembleAll(string(src))
				if err != nil {
					return fmt.Errorf("%s: %w", file, err)
				}
				for _, c := range classes {
					if err := c.Validate(); err != nil {
						return fmt.Errorf("%s: %s: %w", file, c.Name, err)
					}
					data, err := c.Encode()
					if err != nil {
						return err
					}
					path := filepath.Join(outDir, filepath.FromSlash(c.Name)+vm.ClassExt)
					if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
						return err
					}
					if err := os.WriteFile(path, data, 0o644); err != nil {
						return err
					}
					opts.log.Debug("assembled class", zap.String("class", c.Name), zap.String("path", path))
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&outDir, "out", "o", ".", "output directory")
	return cmd
}

func newDisCmd(opts *options) *cobra.Command {
	var instrumented bool
	cmd := &cobra.Command{
		Use:   "dis class",
		Short: "Disassemble a class from the class path or a .cls file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cp := opts.newClassPath()
			data, err := readClass(cp, args[0])
			if err != nil {
				return err
			}
			c, err := classfile.Decode(data)
			if err != nil {
				return err
			}
			if instrumented {
				out, report := opts.newInstrumenter(cp).Class(c)
				if err := report.Err(); err != nil {
					fmt.Fprintln(os.Stderr, opts.render(errorStyle, err.Error()))
				}
				c = out
			}
			fmt.Print(asm.Disassemble(c))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&instrumented, "instrumented", "i", false, "show the instrumented form")
	return cmd
}

func readClass(cp *vm.ClassPath, arg string) ([]byte, error) {
	if filepath.Ext(arg) == vm.ClassExt {
		return os.ReadFile(arg)
	}
	return cp.Resolve(arg)
}
