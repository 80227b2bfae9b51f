package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"fsec/internal/aliases"
	"fsec/internal/app"
	"fsec/internal/config"
	"fsec/internal/logging"
	"fsec/internal/registry"
	"fsec/internal/sheet"
	"fsec/internal/watch"
)

func main() {
	cfg, err := config.Load()
	must(err)

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	must(err)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cmd := os.Args[1]
	switch cmd {
	case "aliases:unknown":
		names, err := aliases.LoadUnknown(cfg.UnknownPath)
		must(err)
		for _, n := range names {
			fmt.Println(n)
		}
		return
	case "downloads:prune":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		days := fs.Int("days", 42, "forget files recorded more than this many days ago")
		_ = fs.Parse(os.Args[2:])
		dl, err := watch.LoadDownloadLog(cfg.DownloadLog)
		must(err)
		pruned := dl.Prune(time.Now().AddDate(0, 0, -*days))
		must(dl.Save())
		fmt.Printf("pruned %d entries, %d remain\n", len(pruned), dl.Len())
		return
	}

	a, err := app.New(ctx, cfg, logger)
	must(err)
	defer a.Close()

	switch cmd {
	case "parse":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		out := fs.String("out", cfg.OutputDir, "output directory for file sinks")
		_ = fs.Parse(os.Args[2:])
		if fs.NArg() == 0 {
			must(fmt.Errorf("parse needs at least one file or directory"))
		}
		paths, err := expandPaths(fs.Args())
		must(err)
		a.WithOutputDir(*out)
		batch, err := a.Processor.Run(ctx, paths)
		for _, f := range batch.Files {
			alias := strings.ToUpper(f.Result.Operator.Record.Alias)
			fmt.Printf("%s status=%s rows=%d operator=%s\n", f.Path, f.Result.Status, f.Result.Frame.Len(), alias)
		}
		fmt.Printf("run=%s files=%d processed=%d learned=%d unknown=%d\n", batch.RunID, len(batch.Files), batch.Processed(), len(batch.Learned), len(batch.Unknown))
		must(err)
	case "resolve":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		learn := fs.Bool("learn", false, "write resolutions back to the registry")
		_ = fs.Parse(os.Args[2:])
		if fs.NArg() == 0 {
			must(fmt.Errorf("resolve needs at least one name"))
		}
		loaded := loadRegistry(ctx, a.Store)
		if *learn && !loaded {
			must(fmt.Errorf("registry unreadable, refusing to --learn over it"))
		}
		for _, name := range fs.Args() {
			res := a.Resolver.Resolve(name)
			fmt.Printf("%q alias=%s method=%s score=%d\n", name, res.Record.Alias, res.Method, res.Record.FuzzyScore)
			if *learn {
				a.Resolver.Learn(res)
			}
		}
		if *learn {
			must(a.Store.Save(ctx))
		}
	case "registry:refresh":
		loadRegistry(ctx, a.Store)
		before := a.Store.Len()
		must(a.Store.Refresh(ctx))
		fmt.Printf("registry refreshed records=%d (was %d)\n", a.Store.Len(), before)
	case "registry:copy":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		backend := fs.String("to", "", "json|yaml|sqlite|postgres|redis")
		path := fs.String("path", "", "target file path (json, yaml, sqlite)")
		dsn := fs.String("dsn", "", "target DSN (sqlite, postgres)")
		redisURL := fs.String("redis", "", "target redis url")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*backend) == "" {
			must(fmt.Errorf("--to is required"))
		}
		dst, err := registry.Open(ctx, registry.Config{Backend: *backend, Path: *path, DSN: *dsn, RedisURL: *redisURL}, logger.Named("registry"))
		must(err)
		defer dst.Close()
		n, err := registry.Copy(ctx, a.Store, dst)
		must(err)
		fmt.Printf("copied %d records to %s\n", n, *backend)
	case "runs:show":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		runID := fs.String("run", "", "batch run id (default: last run)")
		_ = fs.Parse(os.Args[2:])
		id := *runID
		if id == "" {
			last, err := a.DB.GetMetadata(ctx, "batch.last_run")
			must(err)
			if last == nil {
				must(fmt.Errorf("no runs recorded"))
			}
			id = *last
		}
		runs, err := a.DB.ListRuns(ctx, id)
		must(err)
		for _, r := range runs {
			fmt.Printf("%s %s status=%s rows=%d operator=%s ms=%d\n", r.CreatedAt.Format(time.RFC3339), r.Source, r.Status, r.Rows, r.OperatorAlias, r.DurationMs)
		}
		rows, err := a.DB.ListSchedules(ctx, id)
		must(err)
		fmt.Printf("run=%s files=%d stored_rows=%d\n", id, len(runs), len(rows))
	case "watch":
		w, err := a.Watcher()
		must(err)
		must(w.Run(ctx))
	default:
		usage()
		os.Exit(1)
	}
}

// loadRegistry reports false when the registry exists but could not be read.
func loadRegistry(ctx context.Context, store registry.Store) bool {
	err := store.Load(ctx)
	if err == nil {
		return true
	}
	fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	return errors.Is(err, registry.ErrNotFound)
}

// expandPaths replaces each directory argument with the supported files in it.
func expandPaths(args []string) ([]string, error) {
	var out []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			out = append(out, arg)
			continue
		}
		err = filepath.WalkDir(arg, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && sheet.Supported(path) {
				out = append(out, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func usage() {
	fmt.Println("usage: fsec <command>")
	fmt.Println("commands:")
	fmt.Println("  parse [--out=./out] <file|dir>...")
	fmt.Println("  resolve [--learn] <operator name>...")
	fmt.Println("  registry:refresh")
	fmt.Println("  registry:copy --to=json|yaml|sqlite|postgres|redis [--path=...] [--dsn=...] [--redis=...]")
	fmt.Println("  runs:show [--run=<id>]")
	fmt.Println("  aliases:unknown")
	fmt.Println("  downloads:prune [--days=42]")
	fmt.Println("  watch")
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
