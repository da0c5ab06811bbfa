// hlldctl is a REPL/CLI that exercises a live [setmgr.Manager] end to
// end. It is a demonstration front-end, not the TCP/UDP line protocol
// spec §1 excludes from the core's scope.
//
// Usage:
//
//	hlldctl [--data-dir <path>] [--config <file>] [--flush-interval <s>]
//	        [--cold-interval <s>] [--use-mmap]
//
// Commands (in REPL):
//
//	create <name> [eps]            Create a set, optionally with a custom default_eps
//	drop <name>                    Mark a set deleted
//	clear <name>                   Mark a proxied set deleted without unlinking disk state
//	add <name> <key...>             Add one or more keys to a set
//	size <name>                    Print a set's cardinality estimate
//	list [prefix]                  List active set names
//	list-cold                      List sets untouched since the last sweep
//	flush <name>                   Flush a set to disk
//	unmap <name>                   Page a set out to proxied state
//	vacuum                         Run one manager vacuum cycle
//	checkpoint                     Publish this REPL's observed version
//	help                           Show this help
//	exit / quit / q                Exit
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/peterh/liner"
	pflag "github.com/spf13/pflag"

	"github.com/hlldsvc/hlld/pkg/hllconfig"
	"github.com/hlldsvc/hlld/pkg/setmgr"
	"github.com/hlldsvc/hlld/pkg/workers"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		dataDir       string
		configPath    string
		flushInterval int
		coldInterval  int
		useMmap       bool
	)

	flags := pflag.NewFlagSet("hlldctl", pflag.ExitOnError)
	flags.StringVar(&dataDir, "data-dir", "", "directory holding hlld.<name> set directories (overrides --config)")
	flags.StringVar(&configPath, "config", "", "JSON-with-comments global config file")
	flags.IntVar(&flushInterval, "flush-interval", -1, "seconds between flush sweeps, 0 disables (overrides config)")
	flags.IntVar(&coldInterval, "cold-interval", -1, "seconds between cold-unmap sweeps, 0 disables (overrides config)")
	flags.BoolVar(&useMmap, "use-mmap", true, "use shared mmap instead of persistent anonymous pages for file-backed sets")

	if err := flags.Parse(os.Args[1:]); err != nil {
		return err
	}

	global, err := hllconfig.LoadGlobalConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if dataDir != "" {
		global.DataDir = dataDir
	}

	if flushInterval >= 0 {
		global.FlushInterval = time.Duration(flushInterval) * time.Second
	}

	if coldInterval >= 0 {
		global.ColdInterval = time.Duration(coldInterval) * time.Second
	}

	global.UseMmap = useMmap

	logger := hllconfig.StdLogger{L: log.New(os.Stderr, "hlldctl: ", log.LstdFlags)}

	mgr, err := setmgr.New(global, setmgr.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("opening manager at %s: %w", global.DataDir, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	wait := workers.Group(ctx, mgr, global, logger)

	repl := &REPL{mgr: mgr, global: global}
	err = repl.Run()

	cancel()
	wait()

	return err
}

// REPL is the interactive command loop over a live manager.
type REPL struct {
	mgr    *setmgr.Manager
	global hllconfig.GlobalConfig
	liner  *liner.State
}

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".hlldctl_history")
}

// Run starts the REPL loop over stdin.
func (r *REPL) Run() error {
	r.liner = liner.NewLiner()
	defer r.liner.Close()

	r.liner.SetCtrlCAborts(true)
	r.liner.SetCompleter(r.completer)

	if f, err := os.Open(historyFile()); err == nil {
		r.liner.ReadHistory(f)
		f.Close()
	}

	fmt.Printf("hlldctl - hlld core REPL (data_dir=%s)\n", r.global.DataDir)
	fmt.Println("Type 'help' for available commands.")
	fmt.Println()

	for {
		line, err := r.liner.Prompt("hlldctl> ")
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

		if cmd == "exit" || cmd == "quit" || cmd == "q" {
			fmt.Println("Bye!")
			r.saveHistory()

			return nil
		}

		r.dispatch(cmd, args)
	}

	r.saveHistory()

	return nil
}

func (r *REPL) dispatch(cmd string, args []string) {
	switch cmd {
	case "help", "?":
		r.printHelp()
	case "create":
		r.cmdCreate(args)
	case "drop":
		r.cmdDrop(args)
	case "clear":
		r.cmdClear(args)
	case "add":
		r.cmdAdd(args)
	case "size":
		r.cmdSize(args)
	case "list", "ls":
		r.cmdList(args)
	case "list-cold":
		r.cmdListCold()
	case "flush":
		r.cmdFlush(args)
	case "unmap":
		r.cmdUnmap(args)
	case "vacuum":
		r.mgr.Vacuum()
		fmt.Println("ok")
	case "checkpoint":
		c := r.mgr.Join()
		c.Checkpoint()
		c.Leave()
		fmt.Println("ok")
	default:
		fmt.Printf("Unknown command: %s (type 'help' for commands)\n", cmd)
	}
}

func (r *REPL) cmdCreate(args []string) {
	if len(args) < 1 {
		fmt.Println("usage: create <name> [eps]")
		return
	}

	var custom *hllconfig.SetConfig

	if len(args) >= 2 {
		eps, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			fmt.Printf("invalid eps %q: %v\n", args[1], err)
			return
		}

		cfg := hllconfig.SetConfigFromGlobal(r.global)
		cfg.DefaultEPS = eps
		custom = &cfg
	}

	if err := r.mgr.Create(args[0], custom); err != nil {
		fmt.Println("error:", err)
		return
	}

	fmt.Println("ok")
}

func (r *REPL) cmdDrop(args []string) {
	if len(args) != 1 {
		fmt.Println("usage: drop <name>")
		return
	}

	if err := r.mgr.Drop(args[0]); err != nil {
		fmt.Println("error:", err)
		return
	}

	fmt.Println("ok")
}

func (r *REPL) cmdClear(args []string) {
	if len(args) != 1 {
		fmt.Println("usage: clear <name>")
		return
	}

	if err := r.mgr.Clear(args[0]); err != nil {
		fmt.Println("error:", err)
		return
	}

	fmt.Println("ok")
}

func (r *REPL) cmdAdd(args []string) {
	if len(args) < 2 {
		fmt.Println("usage: add <name> <key...>")
		return
	}

	keys := make([][]byte, 0, len(args)-1)
	for _, k := range args[1:] {
		keys = append(keys, []byte(k))
	}

	if err := r.mgr.AddKeys(args[0], keys); err != nil {
		fmt.Println("error:", err)
		return
	}

	fmt.Println("ok")
}

func (r *REPL) cmdSize(args []string) {
	if len(args) != 1 {
		fmt.Println("usage: size <name>")
		return
	}

	size, err := r.mgr.SetSize(args[0])
	if err != nil {
		fmt.Println("error:", err)
		return
	}

	fmt.Println(size)
}

func (r *REPL) cmdList(args []string) {
	prefix := ""
	if len(args) == 1 {
		prefix = args[0]
	}

	for _, name := range r.mgr.List(prefix) {
		fmt.Println(name)
	}
}

func (r *REPL) cmdListCold() {
	for _, name := range r.mgr.ListCold() {
		fmt.Println(name)
	}
}

func (r *REPL) cmdFlush(args []string) {
	if len(args) != 1 {
		fmt.Println("usage: flush <name>")
		return
	}

	if err := r.mgr.Flush(args[0]); err != nil {
		fmt.Println("error:", err)
		return
	}

	fmt.Println("ok")
}

func (r *REPL) cmdUnmap(args []string) {
	if len(args) != 1 {
		fmt.Println("usage: unmap <name>")
		return
	}

	if err := r.mgr.Unmap(args[0]); err != nil {
		fmt.Println("error:", err)
		return
	}

	fmt.Println("ok")
}

func (r *REPL) printHelp() {
	fmt.Println(`Commands:
  create <name> [eps]   Create a set, optionally with a custom default_eps
  drop <name>           Mark a set deleted
  clear <name>          Mark a proxied set deleted without unlinking disk state
  add <name> <key...>   Add one or more keys to a set
  size <name>           Print a set's cardinality estimate
  list [prefix]         List active set names
  list-cold             List sets untouched since the last sweep
  flush <name>          Flush a set to disk
  unmap <name>          Page a set out to proxied state
  vacuum                Run one manager vacuum cycle
  checkpoint            Publish this REPL's observed version
  help                  Show this help
  exit / quit / q       Exit`)
}

func (r *REPL) completer(line string) []string {
	commands := []string{
		"create", "drop", "clear", "add", "size", "list", "list-cold",
		"flush", "unmap", "vacuum", "checkpoint", "help", "exit", "quit",
	}

	var matches []string

	for _, c := range commands {
		if strings.HasPrefix(c, line) {
			matches = append(matches, c)
		}
	}

	return matches
}

func (r *REPL) saveHistory() {
	if path := historyFile(); path != "" {
		if f, err := os.Create(path); err == nil {
			r.liner.WriteHistory(f)
			f.Close()
		}
	}
}
