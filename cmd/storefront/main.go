package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"syscall"

	"github.com/common-nighthawk/go-figure"
	"github.com/joho/godotenv"
	"github.com/jrsteele09/go-storefront/internal/config"
	"github.com/jrsteele09/go-storefront/internal/logging"
	"github.com/jrsteele09/go-storefront/placement"
	"github.com/jrsteele09/go-storefront/storage/sqlitestore"
	"github.com/jrsteele09/go-storefront/storefront"
	"github.com/rs/zerolog"
)

const databaseFile = "storefront.db"

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Error loading .env: %s\n", err)
	}

	c, err := config.New()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading configuration: %s\n", err)
		os.Exit(2)
	}
	log := logging.New(c.GetEnv(), c.GetLogLevel())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	displayAppname(c.GetAppName())
	if err := run(ctx, c, log, os.Args[1:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, c config.Config, log zerolog.Logger, args []string, in io.Reader, out io.Writer) (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("recovered from panic")
			returnError = errors.New("panic recovered")
		}
	}()

	if len(args) == 0 {
		usage(out)
		return nil
	}

	if err := os.MkdirAll(c.GetDataFolder(), 0o755); err != nil {
		return fmt.Errorf("create data folder: %w", err)
	}
	store, err := sqlitestore.Open(filepath.Join(c.GetDataFolder(), databaseFile))
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn().Err(err).Msg("close storage")
		}
	}()

	updates := make(chan placement.Snapshot, 16)
	app, err := storefront.New(ctx, c, store,
		storefront.WithLogger(log),
		storefront.WithPlacementListener(func(s placement.Snapshot) {
			select {
			case updates <- s:
			default:
			}
		}),
	)
	if err != nil {
		return err
	}
	defer app.Close()

	cli := &commandLine{app: app, in: in, out: out, updates: updates}
	return cli.dispatch(ctx, args)
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
