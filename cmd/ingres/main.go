package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"ingres/internal/app"
	"ingres/internal/config"
)

type globalFlags struct {
	cfgPath string
	verbose bool
	logFile string
}

func main() {
	_ = godotenv.Load()

	var g globalFlags
	root := &cobra.Command{
		Use:           "ingres",
		Short:         "Groundwater resource assistant over structured records and documents",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&g.cfgPath, "config", "c", "", "config file (default ./config.yaml, then ~/.config/ingres/config.yaml)")
	root.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "log component diagnostics to stderr")
	root.PersistentFlags().StringVar(&g.logFile, "log-file", "", "append component diagnostics to this file")

	root.AddCommand(
		chatCMD(&g),
		askCMD(&g),
		reindexCMD(&g),
		watchCMD(&g),
		statsCMD(&g),
		searchCMD(&g),
		feedbackCMD(&g),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func loadConfig(g *globalFlags) (*config.AppConfig, error) {
	if g.cfgPath == "" {
		cfg, _, err := config.LoadDefault()
		return cfg, err
	}
	return config.Load(g.cfgPath)
}

func (g *globalFlags) logOutput() (io.Writer, func(), error) {
	switch {
	case g.logFile != "":
		f, err := os.OpenFile(g.logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, err
		}
		return f, func() { _ = f.Close() }, nil
	case g.verbose:
		return os.Stderr, func() {}, nil
	default:
		return io.Discard, func() {}, nil
	}
}

// withApp builds and initializes the App, runs fn, then shuts it down.
func withApp(ctx context.Context, g *globalFlags, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := loadConfig(g)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	out, closeLog, err := g.logOutput()
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer closeLog()

	a, err := app.New(ctx, cfg, out)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.Shutdown(sctx); err != nil {
			log.Printf("shutdown: %v", err)
		}
	}()
	if err := a.Initialize(ctx); err != nil {
		return err
	}
	return fn(ctx, a)
}

// serveMetrics exposes /metrics when telemetry.metrics_address is set.
func serveMetrics(ctx context.Context, a *app.App) {
	addr := a.Config.Telemetry.MetricsAddress
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.Metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("metrics listener: %v", err)
		}
	}()
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
