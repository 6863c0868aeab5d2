package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wippyai/resumable/coroutine"
	"github.com/wippyai/resumable/vm"
)

const runnableClass = "coro/SuspendableRunnable"

func newRunCmd(opts *options) *cobra.Command {
	var (
		plain       bool
		interactive bool
		maxRuns     int
		stackSize   int
	)
	cmd := &cobra.Command{
		Use:   "run class",
		Short: "Run a class, instrumenting it as it loads",
		Long: `Run executes a class on the interpreter. A coro/SuspendableRunnable is
created with its no-argument constructor and driven as a coroutine until it
finishes; any other class has its static main()V invoked.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if interactive {
				return runInteractive(opts, args[0], stackSize, plain)
			}
			m := opts.newMachine(os.Stdout, plain)
			return runClass(cmd.Context(), m, args[0], maxRuns, stackSize)
		},
	}
	cmd.Flags().BoolVar(&plain, "no-instrument", false, "load classes unmodified")
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "step through suspensions in a TUI")
	cmd.Flags().IntVar(&maxRuns, "max-runs", 10000, "give up after this many resumes")
	cmd.Flags().IntVar(&stackSize, "stack-size", coroutine.DefaultStackSize, "initial frame stack records")
	return cmd
}

func (o *options) newMachine(out io.Writer, plain bool) *vm.Machine {
	cp := o.newClassPath()
	vmOpts := []vm.Option{vm.WithOutput(out)}
	if !plain {
		vmOpts = append(vmOpts, vm.WithTransformer(o.newInstrumenter(cp).Transformer()))
	}
	return vm.New(cp, vmOpts...)
}

// newCoroutine creates a coroutine running a fresh instance of class.
func newCoroutine(ctx context.Context, m *vm.Machine, class string, stackSize int) (*vm.Thread, *coroutine.Coroutine, error) {
	th := m.NewThread(ctx)
	obj, err := th.NewObject(class, "()V")
	if err != nil {
		return nil, nil, err
	}
	co := m.NewCoroutine(th, obj, coroutine.WithStackSize(stackSize), coroutine.WithName(class))
	return th, co, nil
}

func runClass(ctx context.Context, m *vm.Machine, class string, maxRuns, stackSize int) error {
	c, err := m.LoadClass(class)
	if err != nil {
		return err
	}
	if !c.IsSubclassOf(runnableClass) {
		_, err := m.Invoke(ctx, class, "main", "()V")
		return err
	}

	th, co, err := newCoroutine(ctx, m, class, stackSize)
	if err != nil {
		return err
	}
	for runs := 0; co.State() != coroutine.StateFinished; runs++ {
		if runs >= maxRuns {
			return fmt.Errorf("%s still suspended after %d runs", class, runs)
		}
		if err := co.Run(th); err != nil {
			return err
		}
		if co.State() == coroutine.StateSuspended {
			fmt.Fprintf(os.Stderr, "-- suspended with %d saved frames\n", len(co.Stack().Frames()))
		}
	}
	return nil
}

// describeFrames renders the saved frames of a suspended coroutine,
// outermost first.
func describeFrames(frames []coroutine.Frame) string {
	var b strings.Builder
	for i, f := range frames {
		fmt.Fprintf(&b, "#%d entry %d\n", i, f.Entry)
		for j, o := range f.Objects {
			fmt.Fprintf(&b, "    obj[%d]  %s\n", j, describeValue(o))
		}
		for j, p := range f.Prims {
			fmt.Fprintf(&b, "    prim[%d] %#x\n", j, p)
		}
	}
	return b.String()
}

func describeValue(v any) string {
	switch v := v.(type) {
	case nil:
		return "null"
	case string:
		return fmt.Sprintf("%q", v)
	case *vm.Object:
		return v.ClassName()
	case *vm.Array:
		return fmt.Sprintf("%s[%d]", v.Desc, len(v.Elems))
	}
	return fmt.Sprintf("%v", v)
}
