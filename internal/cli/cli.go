// Package cli parses arguments, wires the store together, and formats
// results for the terminal.
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/todosafe/todosafe/internal/config"
	"github.com/todosafe/todosafe/internal/domain"
	"github.com/todosafe/todosafe/internal/dualmutex"
	"github.com/todosafe/todosafe/internal/filelock"
	"github.com/todosafe/todosafe/internal/logging"
	"github.com/todosafe/todosafe/internal/mcp"
	"github.com/todosafe/todosafe/internal/pathutil"
	"github.com/todosafe/todosafe/internal/securedir"
	"github.com/todosafe/todosafe/internal/storage"
	"github.com/todosafe/todosafe/internal/watcher"
	"github.com/todosafe/todosafe/internal/wizard"
)

// Exit codes. Domain errors (bad input, unknown id) are distinguished from
// infrastructure failures so scripts can tell them apart.
const (
	exitOK      = 0
	exitDomain  = 1
	exitUsage   = 2
	exitStorage = 3
)

var initWizard = wizard.Run

// newStore is replaced in tests to observe the resolved options.
var newStore = func(cfg config.Config, logger *slog.Logger) (*storage.Store, error) {
	opts := cfg.StoreOptions()
	opts.Logger = logger
	return storage.New(opts)
}

func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		usage(stderr)
		return exitUsage
	}

	ctx := context.Background()

	switch args[1] {
	case "init":
		return runInit(args[2:], stdout, stderr)
	case "add":
		fs := flag.NewFlagSet("add", flag.ExitOnError)
		cf := commonFlags(fs)
		due := fs.String("due", "", "Due date (YYYY-MM-DD)")
		_ = fs.Parse(args[2:])
		if fs.NArg() < 1 {
			fmt.Fprintln(stderr, "add: missing todo text")
			return exitUsage
		}
		return withStore(cf, stderr, func(s *storage.Store) (int, error) {
			todo, err := s.Add(ctx, joinedArg(fs), *due)
			if err != nil {
				return 0, err
			}
			fmt.Fprintf(stdout, "Added todo %d: %s\n", todo.ID, todo.Text)
			return exitOK, nil
		})
	case "list":
		fs := flag.NewFlagSet("list", flag.ExitOnError)
		cf := commonFlags(fs)
		all := fs.Bool("all", false, "Include completed todos")
		watch := fs.Bool("watch", false, "Re-render whenever the todo file changes")
		_ = fs.Parse(args[2:])
		return withStore(cf, stderr, func(s *storage.Store) (int, error) {
			if *watch {
				return runListWatch(ctx, s, *all, stdout, stderr)
			}
			todos, err := s.Load(ctx)
			if err != nil {
				return 0, err
			}
			renderList(stdout, todos, *all)
			return exitOK, nil
		})
	case "done", "undone":
		done := args[1] == "done"
		fs := flag.NewFlagSet(args[1], flag.ExitOnError)
		cf := commonFlags(fs)
		_ = fs.Parse(args[2:])
		id, code := parseID(fs, stderr)
		if code != exitOK {
			return code
		}
		return withStore(cf, stderr, func(s *storage.Store) (int, error) {
			todo, err := s.SetDone(ctx, id, done)
			if err != nil {
				return 0, err
			}
			state := "done"
			if !done {
				state = "pending"
			}
			fmt.Fprintf(stdout, "Todo %d marked %s: %s\n", todo.ID, state, todo.Text)
			return exitOK, nil
		})
	case "rename":
		fs := flag.NewFlagSet("rename", flag.ExitOnError)
		cf := commonFlags(fs)
		_ = fs.Parse(args[2:])
		id, code := parseID(fs, stderr)
		if code != exitOK {
			return code
		}
		if fs.NArg() < 2 {
			fmt.Fprintln(stderr, "rename: missing new text")
			return exitUsage
		}
		text := joinedArgFrom(fs, 1)
		return withStore(cf, stderr, func(s *storage.Store) (int, error) {
			todo, err := s.Rename(ctx, id, text)
			if err != nil {
				return 0, err
			}
			fmt.Fprintf(stdout, "Todo %d renamed: %s\n", todo.ID, todo.Text)
			return exitOK, nil
		})
	case "due":
		fs := flag.NewFlagSet("due", flag.ExitOnError)
		cf := commonFlags(fs)
		clearDate := fs.Bool("clear", false, "Remove the due date")
		_ = fs.Parse(args[2:])
		id, code := parseID(fs, stderr)
		if code != exitOK {
			return code
		}
		date := ""
		if !*clearDate {
			if fs.NArg() < 2 {
				fmt.Fprintln(stderr, "due: missing date (YYYY-MM-DD), or pass --clear")
				return exitUsage
			}
			date = fs.Arg(1)
		}
		return withStore(cf, stderr, func(s *storage.Store) (int, error) {
			todo, err := s.SetDueDate(ctx, id, date)
			if err != nil {
				return 0, err
			}
			if todo.DueDate == "" {
				fmt.Fprintf(stdout, "Todo %d due date cleared\n", todo.ID)
			} else {
				fmt.Fprintf(stdout, "Todo %d due %s\n", todo.ID, todo.DueDate)
			}
			return exitOK, nil
		})
	case "delete":
		fs := flag.NewFlagSet("delete", flag.ExitOnError)
		cf := commonFlags(fs)
		_ = fs.Parse(args[2:])
		id, code := parseID(fs, stderr)
		if code != exitOK {
			return code
		}
		return withStore(cf, stderr, func(s *storage.Store) (int, error) {
			if err := s.Delete(ctx, id); err != nil {
				return 0, err
			}
			fmt.Fprintf(stdout, "Todo %d deleted\n", id)
			return exitOK, nil
		})
	case "clear-done":
		fs := flag.NewFlagSet("clear-done", flag.ExitOnError)
		cf := commonFlags(fs)
		dryRun := fs.Bool("dry-run", false, "Show what would be deleted without deleting")
		_ = fs.Parse(args[2:])
		var explicit *bool
		fs.Visit(func(f *flag.Flag) {
			if f.Name == "dry-run" {
				explicit = dryRun
			}
		})
		return withStore(cf, stderr, func(s *storage.Store) (int, error) {
			removed, err := s.DeleteDone(ctx, explicit)
			if err != nil {
				return 0, err
			}
			verb := "Deleted"
			if explicit != nil && *explicit {
				verb = "Would delete"
			}
			fmt.Fprintf(stdout, "%s %d completed todo(s)\n", verb, len(removed))
			for _, t := range removed {
				fmt.Fprintf(stdout, "  %d: %s\n", t.ID, t.Text)
			}
			return exitOK, nil
		})
	case "backups":
		fs := flag.NewFlagSet("backups", flag.ExitOnError)
		cf := commonFlags(fs)
		_ = fs.Parse(args[2:])
		return withStore(cf, stderr, func(s *storage.Store) (int, error) {
			names, err := s.Backups()
			if err != nil {
				return 0, err
			}
			if len(names) == 0 {
				fmt.Fprintln(stdout, "No backups found")
				return exitOK, nil
			}
			for _, n := range names {
				fmt.Fprintln(stdout, filepath.Base(n))
			}
			return exitOK, nil
		})
	case "restore":
		fs := flag.NewFlagSet("restore", flag.ExitOnError)
		cf := commonFlags(fs)
		_ = fs.Parse(args[2:])
		if fs.NArg() < 1 {
			fmt.Fprintln(stderr, "restore: missing backup name (see `todosafe backups`)")
			return exitUsage
		}
		return withStore(cf, stderr, func(s *storage.Store) (int, error) {
			if err := s.RestoreBackup(fs.Arg(0)); err != nil {
				return 0, err
			}
			fmt.Fprintf(stdout, "Restored %s from %s\n", s.Path(), fs.Arg(0))
			return exitOK, nil
		})
	case "validate":
		fs := flag.NewFlagSet("validate", flag.ExitOnError)
		cf := commonFlags(fs)
		_ = fs.Parse(args[2:])
		return withStore(cf, stderr, func(s *storage.Store) (int, error) {
			ok, reason := s.Validate()
			if !ok {
				fmt.Fprintf(stdout, "%s is invalid: %s\n", s.Path(), reason)
				return exitDomain, nil
			}
			fmt.Fprintf(stdout, "%s is valid\n", s.Path())
			return exitOK, nil
		})
	case "repair":
		fs := flag.NewFlagSet("repair", flag.ExitOnError)
		cf := commonFlags(fs)
		_ = fs.Parse(args[2:])
		return withStore(cf, stderr, func(s *storage.Store) (int, error) {
			todos, err := s.Repair(ctx)
			if err != nil {
				return 0, err
			}
			fmt.Fprintf(stdout, "Repair complete: %d record(s) kept\n", len(todos))
			return exitOK, nil
		})
	case "mcp":
		fs := flag.NewFlagSet("mcp", flag.ExitOnError)
		cf := commonFlags(fs)
		_ = fs.Parse(args[2:])
		return withStore(cf, stderr, func(s *storage.Store) (int, error) {
			mcp.Version = Version
			mcpCtx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer cancel()
			// Long-lived process: drop the cache when another todosafe
			// invocation rewrites the file.
			go func() { _ = s.WatchInvalidate(mcpCtx) }()
			if err := mcp.New(s).Run(mcpCtx); err != nil && mcpCtx.Err() == nil {
				return 0, err
			}
			return exitOK, nil
		})
	case "version":
		fmt.Fprintf(stdout, "todosafe %s (commit %s, built %s)\n", Version, Commit, Date)
		return exitOK
	default:
		usage(stderr)
		return exitUsage
	}
}

func runInit(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	configPath := fs.String("config", config.DefaultPath, "Config file path")
	force := fs.Bool("force", false, "Overwrite existing config file")
	noInteractive := fs.Bool("no-interactive", false, "Skip the interactive init wizard")
	_ = fs.Parse(args)

	cfg := config.Default()
	if exists, err := config.Exists(*configPath); err == nil && exists && !*force {
		fmt.Fprintf(stderr, "config %s already exists (use --force to overwrite)\n", *configPath)
		return exitUsage
	}

	if !*noInteractive && isTerminal(stdout) {
		var confirmed bool
		var err error
		cfg, confirmed, err = initWizard(cfg, stdout, os.Stdin)
		if err != nil {
			fmt.Fprintln(stderr, err)
			return exitUsage
		}
		if !confirmed {
			fmt.Fprintln(stdout, "Init cancelled; no configuration written.")
			return exitOK
		}
	}

	file, err := os.Create(*configPath)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitUsage
	}
	defer file.Close()
	if err := config.Write(file, cfg); err != nil {
		fmt.Fprintln(stderr, err)
		return exitUsage
	}
	fmt.Fprintf(stdout, "Config written to %s\n", *configPath)
	return exitOK
}

func runListWatch(ctx context.Context, s *storage.Store, all bool, stdout, stderr io.Writer) (int, error) {
	w, err := watcher.New(s.Path())
	if err != nil {
		return 0, err
	}
	defer w.Close()

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	render := func() error {
		todos, err := s.Load(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "--- %s ---\n", time.Now().Format("15:04:05"))
		renderList(stdout, todos, all)
		return nil
	}

	if err := render(); err != nil {
		return 0, err
	}
	fmt.Fprintln(stdout, "Watching for changes... (Ctrl+C to stop)")

	events := w.Events(ctx)
	for {
		select {
		case <-ctx.Done():
			return exitOK, nil
		case _, ok := <-events:
			if !ok {
				return exitOK, nil
			}
			s.InvalidateCache()
			if err := render(); err != nil {
				fmt.Fprintln(stderr, err)
			}
		}
	}
}

// flags shared by every store-backed subcommand. CLI flags win over
// environment variables and the config file.
type common struct {
	configPath  string
	db          string
	verbose     bool
	lockTimeout float64
	set         *flag.FlagSet
}

func commonFlags(fs *flag.FlagSet) *common {
	cf := &common{set: fs}
	fs.StringVar(&cf.configPath, "config", config.DefaultPath, "Config file path")
	fs.StringVar(&cf.db, "db", "", "Todo file path (overrides config)")
	fs.BoolVar(&cf.verbose, "verbose", false, "Enable debug logging")
	fs.Float64Var(&cf.lockTimeout, "lock-timeout", 0, "Lock acquisition timeout in seconds")
	return cf
}

func (cf *common) resolve() (config.Config, error) {
	cfg, err := config.Load(cf.configPath)
	if err != nil {
		return cfg, err
	}
	if cf.db != "" {
		cfg.DB = cf.db
	}
	if cf.verbose {
		cfg.Verbose = true
	}
	if cf.lockTimeout > 0 {
		cfg.LockTimeout = time.Duration(cf.lockTimeout * float64(time.Second))
	}
	return cfg, nil
}

func withStore(cf *common, stderr io.Writer, fn func(*storage.Store) (int, error)) int {
	cfg, err := cf.resolve()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitUsage
	}
	logger := logging.New(logging.Options{Verbose: cfg.Verbose, Writer: stderr})
	store, err := newStore(cfg, logger)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitStorage
	}
	code, err := fn(store)
	if err != nil {
		return reportError(err, stderr)
	}
	return code
}

// reportError maps the error taxonomy onto exit codes. Anything outside the
// known shapes is surfaced verbatim as a storage failure.
func reportError(err error, stderr io.Writer) int {
	fmt.Fprintln(stderr, err)

	var notFound *storage.NotFoundError
	var fieldErr *domain.FieldError
	var schemaErr *storage.SchemaError
	switch {
	case errors.As(err, &notFound), errors.As(err, &fieldErr):
		return exitDomain
	case errors.As(err, &schemaErr):
		return exitStorage
	}

	var pathErr *pathutil.AncestorError
	if errors.Is(err, pathutil.ErrEmptyPath) || errors.Is(err, pathutil.ErrNullBytes) || errors.As(err, &pathErr) {
		return exitUsage
	}

	var secErr *securedir.SecurityError
	var decodeErr *storage.DecodeError
	if filelock.IsTimeout(err) || dualmutex.IsTimeout(err) ||
		errors.As(err, &secErr) || errors.As(err, &decodeErr) {
		return exitStorage
	}

	// Bare validation errors from domain methods (empty text, bad date).
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return exitStorage
	}
	return exitDomain
}

func parseID(fs *flag.FlagSet, stderr io.Writer) (int, int) {
	if fs.NArg() < 1 {
		fmt.Fprintf(stderr, "%s: missing todo id\n", fs.Name())
		return 0, exitUsage
	}
	id, err := strconv.Atoi(fs.Arg(0))
	if err != nil || id < 1 {
		fmt.Fprintf(stderr, "%s: invalid todo id %q\n", fs.Name(), fs.Arg(0))
		return 0, exitUsage
	}
	return id, exitOK
}

func joinedArg(fs *flag.FlagSet) string { return joinedArgFrom(fs, 0) }

func joinedArgFrom(fs *flag.FlagSet, start int) string {
	out := ""
	for i := start; i < fs.NArg(); i++ {
		if out != "" {
			out += " "
		}
		out += fs.Arg(i)
	}
	return out
}

func usage(w io.Writer) {
	fmt.Fprintln(w, `todosafe <command>

Commands:
  init        Write a .todosafe.yaml config (interactive on a terminal)
  add         Add a todo (--due YYYY-MM-DD)
  list        List pending todos (--all includes done, --watch follows changes)
  done        Mark a todo as completed
  undone      Mark a todo as pending again
  rename      Replace a todo's text
  due         Set a todo's due date (--clear removes it)
  delete      Delete a todo
  clear-done  Delete all completed todos (--dry-run to preview)
  backups     List backup files for the todo database
  restore     Restore the database from a named backup
  validate    Check the todo file for corruption
  repair      Recover what can be read from a corrupt todo file
  mcp         Serve the todo store over the Model Context Protocol
  version     Print version information`)
}
