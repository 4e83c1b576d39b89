package cmd

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/xraph/courier"
	"github.com/xraph/courier/extension"
	"github.com/xraph/courier/observability"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the admin API and the delivery worker",
	Long: `Serve the admin API under the configured base path, expose /metrics and
/healthz, and run the delivery worker until SIGINT or SIGTERM.

The daemon runs on the in-memory store. Persistent backends are wired by
applications embedding the extension package.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("addr", ":8080", "listen address")
	_ = viper.BindPFlag("addr", serveCmd.Flags().Lookup("addr"))

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	ext := extension.New(
		extension.WithConfig(cfg),
		extension.WithLogger(logger),
		extension.WithCourierOption(courier.WithMetrics(observability.NewMetrics(reg))),
		extension.WithCourierOption(courier.WithTracer(observability.NewTracer())),
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := ext.Register(ctx); err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := ext.Health(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	if !cfg.DisableRoutes {
		mux.Handle(mountPattern(cfg.BasePath), ext.Handler())
	}

	addr := viper.GetString("addr")
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if err := ext.Start(ctx); err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("courierd listening", "addr", addr, "base_path", cfg.BasePath)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			logger.Error("http server failed", "error", err)
		}
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	_ = srv.Shutdown(shutdownCtx)
	if err := ext.Stop(shutdownCtx); err != nil {
		return err
	}

	logger.Info("courierd stopped")
	return nil
}

// mountPattern turns a base path into a ServeMux subtree pattern.
func mountPattern(base string) string {
	p := strings.Trim(base, "/")
	if p == "" {
		return "/"
	}
	return "/" + p + "/"
}
