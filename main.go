package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/IAmFuckingGenius/ClipKeeper/internal/app"
	"github.com/IAmFuckingGenius/ClipKeeper/internal/bundle"
	"github.com/IAmFuckingGenius/ClipKeeper/internal/database"
)

func main() {
	var (
		configPath  = flag.String("config", "", "path to the config file (default: XDG config dir)")
		cmd         = flag.String("cmd", "", "one-shot command: export, import, backup, restore, backups, stats, update")
		in          = flag.String("in", "", "input file for import and restore")
		out         = flag.String("out", "", "output file for export (default: stdout)")
		mode        = flag.String("mode", "merge", "import mode: merge or replace")
		debug       = flag.Bool("debug", false, "enable debug logging")
		showVersion = flag.Bool("version", false, "print version information and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s %s (built %s, commit %s)\n", app.AppName, app.Version, app.BuildDate, app.GitCommit)
		return
	}

	logger, err := newLogger(*debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Self-update needs no data directory, run it before opening anything.
	if *cmd == "update" {
		if err := runUpdate(ctx, logger); err != nil {
			logger.Fatal("update failed", zap.Error(err))
		}
		return
	}

	application, err := app.New(*configPath, logger)
	if err != nil {
		logger.Fatal("failed to initialize", zap.Error(err))
	}
	defer application.Close()

	if *cmd == "" {
		if err := application.Run(ctx); err != nil {
			logger.Fatal("failed to run", zap.Error(err))
		}
		return
	}

	if err := runCommand(ctx, application, *cmd, *in, *out, *mode); err != nil {
		logger.Fatal("command failed", zap.String("cmd", *cmd), zap.Error(err))
	}
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func runCommand(ctx context.Context, application *app.App, cmd, in, out, mode string) error {
	switch cmd {
	case "export":
		return runExport(ctx, application, out)
	case "import":
		return runImport(ctx, application, in, mode)
	case "backup":
		return runBackup(ctx, application)
	case "restore":
		return runRestore(ctx, application, in)
	case "backups":
		return runListBackups(application)
	case "stats":
		return runStats(ctx, application)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func runExport(ctx context.Context, application *app.App, out string) error {
	if out == "" {
		return application.Bundle().Export(ctx, os.Stdout, database.Filter{})
	}
	if err := application.Bundle().ExportFile(ctx, out, database.Filter{}); err != nil {
		return err
	}
	fmt.Printf("exported history to %s\n", out)
	return nil
}

func runImport(ctx context.Context, application *app.App, in, mode string) error {
	if in == "" {
		return fmt.Errorf("import requires -in FILE")
	}

	var m bundle.Mode
	switch mode {
	case "merge":
		m = bundle.Merge
	case "replace":
		m = bundle.Replace
	default:
		return fmt.Errorf("unknown import mode %q, want merge or replace", mode)
	}

	report, err := application.ImportHistory(ctx, in, m)
	if err != nil {
		return err
	}
	fmt.Printf("imported %d clips, skipped %d\n", report.Imported, report.Skipped)
	return nil
}

func runBackup(ctx context.Context, application *app.App) error {
	info, err := application.Backups().CreateBackup(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("backup written to %s (%d bytes)\n", info.Path, info.Size)
	return nil
}

func runRestore(ctx context.Context, application *app.App, in string) error {
	if in == "" {
		return fmt.Errorf("restore requires -in FILE")
	}

	report, err := application.Backups().RestoreBackup(ctx, in)
	if err != nil {
		return err
	}
	fmt.Printf("restored %d clips, skipped %d\n", report.Imported, report.Skipped)
	return nil
}

func runListBackups(application *app.App) error {
	backups, err := application.Backups().ListBackups()
	if err != nil {
		return err
	}
	if len(backups) == 0 {
		fmt.Println("no backups found")
		return nil
	}
	for _, b := range backups {
		fmt.Printf("%s  %10d  %s\n", b.CreatedAt.Format(time.RFC3339), b.Size, b.Path)
	}
	return nil
}

func runStats(ctx context.Context, application *app.App) error {
	stats, err := application.Repository().Stats(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("clips:     %d\n", stats.Total)
	fmt.Printf("pinned:    %d\n", stats.Pinned)
	fmt.Printf("favorites: %d\n", stats.Favorites)
	fmt.Printf("images:    %d\n", stats.Images)
	fmt.Printf("bytes:     %d\n", stats.TotalBytes)

	categories := make([]string, 0, len(stats.Categories))
	for c := range stats.Categories {
		categories = append(categories, c)
	}
	sort.Strings(categories)
	for _, c := range categories {
		fmt.Printf("  %-10s %d\n", c, stats.Categories[c])
	}
	return nil
}

func runUpdate(ctx context.Context, logger *zap.Logger) error {
	checker, err := app.NewUpdateChecker(logger)
	if err != nil {
		return err
	}

	release, err := checker.Check(ctx)
	if err != nil {
		return err
	}
	if release == nil {
		fmt.Printf("already up to date (%s)\n", app.Version)
		return nil
	}

	fmt.Printf("updating %s -> %s\n", app.Version, release.Version())
	if err := checker.Update(ctx, release); err != nil {
		return err
	}
	fmt.Println("update installed, restart to apply")
	return nil
}
