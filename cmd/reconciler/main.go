package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/lounge-reconciler/internal/config"
	httptransport "github.com/example/lounge-reconciler/internal/http"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand(&rootOptions{loadConfig: config.Load}).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type rootOptions struct {
	Verbose    bool
	loadConfig func() (config.Config, error)
}

func newRootCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconciler",
		Short: "Scheduled reminders and attendance reconciliation",
		Long: `reconciler runs the escort reminder and attendance auto-close jobs
against the configured document store. Configuration is read from
RECONCILER_* environment variables and an optional .env file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newRunCommand(opts))
	cmd.AddCommand(newJobsCommand(opts))
	return cmd
}

// logger writes JSON lines to w. One-shot commands log to stderr so that
// stdout carries only their output.
func (o *rootOptions) logger(w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if o.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// setup loads configuration and wires the application.
func (o *rootOptions) setup(ctx context.Context, logger *slog.Logger) (*app, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return newApp(ctx, cfg, logger)
}

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run jobs on their schedules and serve the operational API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), opts)
		},
	}
}

func serve(ctx context.Context, opts *rootOptions) error {
	logger := opts.logger(os.Stdout)
	a, err := opts.setup(ctx, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil {
			logger.Error("failed to close resources", "error", cerr)
		}
	}()

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", a.cfg.HTTPPort))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return a.serve(ctx, ln)
}

// serve runs cron and the API on ln until ctx ends. It returns only after
// in-flight requests and cron runs have finished, so resources can be closed
// safely afterwards.
func (a *app) serve(ctx context.Context, ln net.Listener) error {
	server := &http.Server{
		Handler:           a.router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      a.cfg.RunTimeout + 30*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.scheduler.Start(ctx)

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.RunTimeout+10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("failed to shutdown server", "error", err)
		}
		if err := a.scheduler.Stop(shutdownCtx); err != nil {
			a.logger.Error("failed to stop scheduler", "error", err)
		}
	}()

	a.logger.Info("reconciler listening", "addr", ln.Addr().String(), "store", a.cfg.Store, "push", a.cfg.Push)
	if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		stopCtx, cancel := context.WithTimeout(context.Background(), a.cfg.RunTimeout+10*time.Second)
		defer cancel()
		if serr := a.scheduler.Stop(stopCtx); serr != nil {
			a.logger.Error("failed to stop scheduler", "error", serr)
		}
		return fmt.Errorf("server encountered error: %w", err)
	}
	<-done
	return nil
}

func (a *app) router() http.Handler {
	var pinger httptransport.Pinger
	if p, ok := a.store.(httptransport.Pinger); ok {
		pinger = p
	}
	cfg := httptransport.RouterConfig{
		Health:     httptransport.NewHealthHandler(pinger, a.cfg.Store, a.scheduler, a.logger),
		Jobs:       httptransport.NewJobHandler(a.scheduler, a.logger),
		Middleware: []func(http.Handler) http.Handler{httptransport.RequestLogger(a.logger)},
	}
	if a.telemetry != nil {
		cfg.Metrics = httptransport.NewMetricsHandler(a.telemetry, a.logger)
	}
	if a.cfg.TriggerToken != "" {
		cfg.Trigger = httptransport.RequireToken(a.cfg.TriggerToken, a.logger)
	}
	return httptransport.NewRouter(cfg)
}

func newRunCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run <job>",
		Short: "Run one job immediately and print its report",
		Long: `Run one job immediately, outside its schedule, and print the run report
as JSON. The distributed lock still applies when Redis is configured.

Example:
  reconciler run reminder
  reconciler run autoclose -v`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := opts.logger(cmd.ErrOrStderr())
			a, err := opts.setup(cmd.Context(), logger)
			if err != nil {
				return err
			}
			defer func() {
				if cerr := a.Close(); cerr != nil {
					logger.Error("failed to close resources", "error", cerr)
				}
			}()

			report, runErr := a.scheduler.RunNow(cmd.Context(), args[0])
			if report.RunID != "" {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(report); err != nil {
					return err
				}
			}
			return runErr
		},
	}
}

func newJobsCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "jobs",
		Short: "List registered jobs and their next firing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := opts.logger(cmd.ErrOrStderr())
			a, err := opts.setup(cmd.Context(), logger)
			if err != nil {
				return err
			}
			defer a.Close()

			for _, job := range a.scheduler.Jobs() {
				fmt.Fprintf(cmd.OutOrStdout(), "%-10s %-16s %-22s next %s\n", job.Name, job.Spec, job.Timezone, job.Next.Format(time.RFC3339))
			}
			return nil
		},
	}
}
