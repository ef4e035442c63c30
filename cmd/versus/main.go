package main

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"versusmatch/internal/logger"
)

const shutdownTimeout = 5 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Stdin, os.Stdout); err != nil {
		logger.Error("versus exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, in io.Reader, out io.Writer) error {
	app := NewApp(out)
	if err := app.startup(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	if exporter := app.services.Exporter; exporter != nil {
		g.Go(func() error {
			if err := exporter.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		err := app.readCommands(gctx, in)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return errors.Join(err, app.shutdown(shutdownCtx))
	})
	return g.Wait()
}

// readCommands executes stdin lines until quit, EOF or ctx is done.
func (a *App) readCommands(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			err := a.Execute(ctx, line)
			if errors.Is(err, errQuit) {
				return nil
			}
			if err != nil {
				a.printf("error: %v\n", err)
			}
		}
	}
}
