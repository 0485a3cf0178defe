package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/gclib/internal/leakreport"
	"github.com/calvinalkan/gclib/pkg/gc"
)

// ScriptCmd runs a sequence of allocator operations against one Collector
// within a single process and reports the resulting stats and leaks. Each
// operation is one positional argument:
//
//	alloc:<size>            allocate size bytes, zero-filled
//	allocraw:<size>          allocate size bytes, uninitialized
//	free:<n>                 free the block returned by the n-th alloc (0-based)
//	realloc:<n>:<size>       resize the block returned by the n-th alloc
//	collect                  threshold-gated collection
//	force-collect            unconditional collection over all generations
//
// This mirrors the ticket CLI's one-subcommand-per-file-operation shape,
// generalized to a short scripted sequence since the collector has no
// on-disk state to resume between invocations.
func ScriptCmd(cfg gc.Config) *Command {
	fs := flag.NewFlagSet("script", flag.ContinueOnError)
	out := fs.String("out", cfg.ReportPath, "also durably write the final leak report to `file`")

	return &Command{
		Flags: fs,
		Usage: "script <op> [op...]",
		Short: "run a sequence of allocator operations and print the result",
		Long: "Runs alloc/free/realloc/collect/force-collect operations in order against a single\n" +
			"in-process collector, then prints per-generation stats and any unfreed blocks.",
		Exec: func(_ context.Context, o *IO, args []string) error {
			return runScript(o, cfg, *out, args)
		},
	}
}

func runScript(o *IO, cfg gc.Config, outPath string, ops []string) error {
	if len(ops) == 0 {
		return errNoOperations
	}

	c, err := gc.New(cfg)
	if err != nil {
		return fmt.Errorf("constructing collector: %w", err)
	}

	if err := c.Init(); err != nil {
		return fmt.Errorf("initializing collector: %w", err)
	}
	defer c.Cleanup()

	var handles []gc.Ptr

	for _, op := range ops {
		if err := applyOp(o, c, &handles, op); err != nil {
			return fmt.Errorf("op %q: %w", op, err)
		}
	}

	o.Println("stats:")

	st := c.Stats()
	for g := range st.CountPerGen {
		o.Printf("  generation %d: %d chunks, %d bytes\n", g, st.CountPerGen[g], st.BytesPerGen[g])
	}

	o.Println("leaks:")

	if err := c.PrintLeaks(stdoutWriter{o}); err != nil {
		return err
	}

	if outPath != "" {
		if err := leakreport.WriteReport(outPath, c.LeakReport()); err != nil {
			return fmt.Errorf("writing leak report: %w", err)
		}

		o.Printf("wrote leak report to %s\n", outPath)
	}

	return nil
}

func applyOp(o *IO, c *gc.Collector, handles *[]gc.Ptr, op string) error {
	name, rest, _ := strings.Cut(op, ":")

	switch name {
	case "alloc":
		size, err := strconv.Atoi(rest)
		if err != nil {
			return fmt.Errorf("%w: %v", errBadOperand, err)
		}

		ptr, err := c.AllocChecked(size, true)
		if err != nil {
			return err
		}

		*handles = append(*handles, ptr)
		o.Printf("alloc -> handle %d\n", len(*handles)-1)

		return nil

	case "allocraw":
		size, err := strconv.Atoi(rest)
		if err != nil {
			return fmt.Errorf("%w: %v", errBadOperand, err)
		}

		ptr, err := c.AllocChecked(size, false)
		if err != nil {
			return err
		}

		*handles = append(*handles, ptr)
		o.Printf("allocraw -> handle %d\n", len(*handles)-1)

		return nil

	case "free":
		idx, err := strconv.Atoi(rest)
		if err != nil {
			return fmt.Errorf("%w: %v", errBadOperand, err)
		}

		ptr, err := handleAt(*handles, idx)
		if err != nil {
			return err
		}

		c.Free(ptr)
		o.Printf("freed handle %d\n", idx)

		return nil

	case "realloc":
		idxStr, sizeStr, ok := strings.Cut(rest, ":")
		if !ok {
			return errBadOperand
		}

		idx, err := strconv.Atoi(idxStr)
		if err != nil {
			return fmt.Errorf("%w: %v", errBadOperand, err)
		}

		size, err := strconv.Atoi(sizeStr)
		if err != nil {
			return fmt.Errorf("%w: %v", errBadOperand, err)
		}

		ptr, err := handleAt(*handles, idx)
		if err != nil {
			return err
		}

		(*handles)[idx] = c.Realloc(ptr, size)
		o.Printf("realloc handle %d -> %d bytes\n", idx, size)

		return nil

	case "collect":
		c.Collect()
		o.Println("collect done")

		return nil

	case "force-collect":
		c.ForceCollect()
		o.Println("force-collect done")

		return nil

	default:
		return fmt.Errorf("%w: %s", errUnknownOperation, name)
	}
}

func handleAt(handles []gc.Ptr, idx int) (gc.Ptr, error) {
	if idx < 0 || idx >= len(handles) {
		return gc.NilPtr, fmt.Errorf("%w: %d", errHandleOutOfRange, idx)
	}

	return handles[idx], nil
}

// stdoutWriter adapts IO's buffered stdout path to io.Writer for
// PrintLeaks, so warnings still flush before leak output appears.
type stdoutWriter struct{ o *IO }

func (w stdoutWriter) Write(p []byte) (int, error) {
	w.o.Printf("%s", p)
	return len(p), nil
}
