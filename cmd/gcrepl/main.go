// gcrepl is an interactive shell for driving one in-process collector.
//
// Usage:
//
//	gcrepl [--config <file>]
//
// Commands (in REPL):
//
//	alloc <size>              Allocate size bytes, zero-filled
//	allocraw <size>           Allocate size bytes, uninitialized
//	free <handle>             Release a block by handle
//	realloc <handle> <size>   Resize a block, handle stays the same number
//	gen <handle>              Show which generation holds a handle
//	stats                     Show per-generation chunk counts and bytes
//	leaks [file]              Print every still-tracked block, or write a durable report to file
//	collect                   Threshold-gated collection
//	force-collect             Unconditional collection over all generations
//	help                      Show this help
//	exit / quit / q           Exit
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/peterh/liner"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/gclib/internal/leakreport"
	"github.com/calvinalkan/gclib/pkg/gc"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	fs := flag.NewFlagSet("gcrepl", flag.ContinueOnError)
	configPath := fs.StringP("config", "c", "", "use specified config file")

	if err := fs.Parse(os.Args[1:]); err != nil {
		return err
	}

	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}

	cfg, _, err := gc.LoadConfig(cwd, *configPath, gc.Config{}, os.Environ())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	collector, err := gc.New(cfg)
	if err != nil {
		return fmt.Errorf("constructing collector: %w", err)
	}

	if err := collector.Init(); err != nil {
		return fmt.Errorf("initializing collector: %w", err)
	}
	defer collector.Cleanup()

	repl := &REPL{collector: collector}

	return repl.Run()
}

// REPL is the interactive command loop driving one Collector.
type REPL struct {
	collector *gc.Collector
	handles   []gc.Ptr
	liner     *liner.State
}

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".gcrepl_history")
}

// Run starts the REPL loop.
func (r *REPL) Run() error {
	r.liner = liner.NewLiner()
	defer r.liner.Close()

	r.liner.SetCtrlCAborts(true)
	r.liner.SetCompleter(r.completer)

	if f, err := os.Open(historyFile()); err == nil {
		r.liner.ReadHistory(f)
		f.Close()
	}

	fmt.Println("gcrepl - conservative generational collector shell")
	fmt.Println("Type 'help' for available commands.")
	fmt.Println()

	for {
		line, err := r.liner.Prompt("gcrepl> ")
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
				fmt.Println("\nBye!")

				break
			}

			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		r.liner.AppendHistory(line)

		parts := strings.Fields(line)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "exit", "quit", "q":
			fmt.Println("Bye!")
			r.saveHistory()

			return nil

		case "help", "?":
			r.printHelp()

		case "alloc":
			r.cmdAlloc(args, true)

		case "allocraw":
			r.cmdAlloc(args, false)

		case "free":
			r.cmdFree(args)

		case "realloc":
			r.cmdRealloc(args)

		case "gen":
			r.cmdGen(args)

		case "stats":
			r.cmdStats()

		case "leaks":
			r.cmdLeaks(args)

		case "collect":
			r.collector.Collect()
			fmt.Println("collect done")

		case "force-collect":
			r.collector.ForceCollect()
			fmt.Println("force-collect done")

		default:
			fmt.Printf("Unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}

	r.saveHistory()

	return nil
}

func (r *REPL) saveHistory() {
	if path := historyFile(); path != "" {
		if f, err := os.Create(path); err == nil {
			r.liner.WriteHistory(f)
			f.Close()
		}
	}
}

func (r *REPL) completer(line string) []string {
	commands := []string{
		"alloc", "allocraw", "free", "realloc", "gen",
		"stats", "leaks", "collect", "force-collect",
		"help", "exit", "quit", "q",
	}

	var completions []string

	lower := strings.ToLower(line)
	for _, cmd := range commands {
		if strings.HasPrefix(cmd, lower) {
			completions = append(completions, cmd)
		}
	}

	return completions
}

func (r *REPL) printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  alloc <size>              Allocate size bytes, zero-filled")
	fmt.Println("  allocraw <size>           Allocate size bytes, uninitialized")
	fmt.Println("  free <handle>             Release a block by handle")
	fmt.Println("  realloc <handle> <size>   Resize a block, handle number stays the same")
	fmt.Println("  gen <handle>              Show which generation holds a handle")
	fmt.Println("  stats                     Show per-generation chunk counts and bytes")
	fmt.Println("  leaks [file]              Print every still-tracked block, or write a durable report to file")
	fmt.Println("  collect                   Threshold-gated collection")
	fmt.Println("  force-collect             Unconditional collection over all generations")
	fmt.Println("  help                      Show this help")
	fmt.Println("  exit / quit / q           Exit")
}

func (r *REPL) cmdAlloc(args []string, zeroed bool) {
	if len(args) < 1 {
		fmt.Println("Usage: alloc <size>")
		return
	}

	size, err := strconv.Atoi(args[0])
	if err != nil {
		fmt.Printf("Error parsing size: %v\n", err)
		return
	}

	ptr, err := r.collector.AllocChecked(size, zeroed)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	r.handles = append(r.handles, ptr)
	fmt.Printf("OK: handle %d\n", len(r.handles)-1)
}

func (r *REPL) resolveHandle(arg string) (gc.Ptr, bool) {
	idx, err := strconv.Atoi(arg)
	if err != nil || idx < 0 || idx >= len(r.handles) {
		fmt.Printf("Error: invalid handle %q\n", arg)
		return gc.NilPtr, false
	}

	return r.handles[idx], true
}

func (r *REPL) cmdFree(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: free <handle>")
		return
	}

	idx, err := strconv.Atoi(args[0])
	if err != nil || idx < 0 || idx >= len(r.handles) {
		fmt.Printf("Error: invalid handle %q\n", args[0])
		return
	}

	if err := r.collector.FreeChecked(r.handles[idx]); err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	fmt.Printf("OK: freed handle %d\n", idx)
}

func (r *REPL) cmdRealloc(args []string) {
	if len(args) < 2 {
		fmt.Println("Usage: realloc <handle> <size>")
		return
	}

	idx, err := strconv.Atoi(args[0])
	if err != nil || idx < 0 || idx >= len(r.handles) {
		fmt.Printf("Error: invalid handle %q\n", args[0])
		return
	}

	size, err := strconv.Atoi(args[1])
	if err != nil {
		fmt.Printf("Error parsing size: %v\n", err)
		return
	}

	r.handles[idx] = r.collector.Realloc(r.handles[idx], size)
	fmt.Printf("OK: handle %d now %d bytes\n", idx, size)
}

func (r *REPL) cmdGen(args []string) {
	ptr, ok := r.resolveHandle(orFirst(args))
	if !ok {
		return
	}

	gen, tracked := r.collector.GenerationOf(ptr)
	if !tracked {
		fmt.Println("(not tracked - already freed or collected)")
		return
	}

	fmt.Printf("generation: %d\n", gen)
}

func orFirst(args []string) string {
	if len(args) == 0 {
		return ""
	}

	return args[0]
}

func (r *REPL) cmdStats() {
	st := r.collector.Stats()
	for g := range st.CountPerGen {
		fmt.Printf("generation %d: %d chunks, %d bytes\n", g, st.CountPerGen[g], st.BytesPerGen[g])
	}
}

// cmdLeaks prints every still-tracked block to stdout, or, when a file
// argument is given, durably writes the same report to that file instead.
func (r *REPL) cmdLeaks(args []string) {
	if len(args) == 0 {
		if err := r.collector.PrintLeaks(os.Stdout); err != nil {
			fmt.Printf("Error: %v\n", err)
		}

		return
	}

	if err := leakreport.WriteReport(args[0], r.collector.LeakReport()); err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	fmt.Printf("OK: wrote leak report to %s\n", args[0])
}
