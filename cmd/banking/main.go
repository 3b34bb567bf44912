package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/alovak/cardledger/internal/console"
	"github.com/alovak/cardledger/ledger"
	"github.com/joho/godotenv"
	"github.com/oklog/oklog/pkg/group"
	"golang.org/x/exp/slog"
)

func main() {
	// Environment first, flags override it.
	envErr := godotenv.Load()

	cfg := ledger.ConfigFromEnv()

	fs := flag.NewFlagSet("banking", flag.ExitOnError)
	var (
		fileName = fs.String("fileName", cfg.StorePath, "SQLite store file (must end in "+ledger.StoreExtension+")")
		backend  = fs.String("backend", cfg.Backend, "store backend: sqlite, postgres or mem")
		dsn      = fs.String("dsn", cfg.DSN, "postgres connection string")
		httpAddr = fs.String("http", cfg.HTTPAddr, "health API listen address, disabled when empty")
		logLevel = fs.String("log-level", cfg.LogLevel, "debug, info, warn or error")
	)
	fs.Usage = usageFor(fs, os.Args[0]+" -fileName <store"+ledger.StoreExtension+"> [flags]")
	_ = fs.Parse(os.Args[1:])

	cfg.StorePath = *fileName
	cfg.Backend = *backend
	cfg.DSN = *dsn
	cfg.HTTPAddr = *httpAddr
	cfg.LogLevel = *logLevel

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level %q\n", cfg.LogLevel)
		os.Exit(2)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	if envErr != nil && !errors.Is(envErr, os.ErrNotExist) {
		logger.Warn("loading .env", slog.Any("err", envErr))
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n\n", err)
		fs.Usage()
		os.Exit(2)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app := ledger.NewApp(logger, cfg)
	if err := app.Start(ctx); err != nil {
		logger.Error("starting app", slog.Any("err", err))
		os.Exit(1)
	}
	defer app.Shutdown()

	var g group.Group
	{
		menu := console.New(os.Stdin, os.Stdout, app.NewSession(), logger)
		menuCtx, stop := context.WithCancel(ctx)
		g.Add(func() error {
			return menu.Run(menuCtx)
		}, func(error) {
			stop()
		})
	}
	{
		// This function just sits and waits for ctrl-C.
		cancelInterrupt := make(chan struct{})
		g.Add(func() error {
			c := make(chan os.Signal, 1)
			signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
			select {
			case sig := <-c:
				return fmt.Errorf("received signal %s", sig)
			case <-cancelInterrupt:
				return nil
			}
		}, func(error) {
			close(cancelInterrupt)
		})
	}

	if err := g.Run(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Info("exit", slog.Any("reason", err))
	}
}

func usageFor(fs *flag.FlagSet, short string) func() {
	return func() {
		fmt.Fprintf(os.Stderr, "USAGE\n")
		fmt.Fprintf(os.Stderr, "  %s\n", short)
		fmt.Fprintf(os.Stderr, "\n")
		fmt.Fprintf(os.Stderr, "FLAGS\n")
		w := tabwriter.NewWriter(os.Stderr, 0, 2, 2, ' ', 0)
		fs.VisitAll(func(f *flag.Flag) {
			fmt.Fprintf(w, "\t-%s %s\t%s\n", f.Name, f.DefValue, f.Usage)
		})
		w.Flush()
		fmt.Fprintf(os.Stderr, "\n")
	}
}
