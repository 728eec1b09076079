// Command vasilid is the multi-radio WiFi connectivity daemon: it owns the
// Radio Pool, drives the scan/dispatch/monitor/auto-select loops, and
// publishes one adopted connection as a NAT gateway. Flag parsing, logger
// setup, and signal handling follow ap.dns4d/ap.rpcd's own main()
// structure; metrics exposition follows ap.watchd/metrics.go's
// metricsInit().
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/metahertz/vasili/internal/config"
	"github.com/metahertz/vasili/internal/engine"
	"github.com/metahertz/vasili/internal/webview"
)

var (
	configPath = flag.String("config", "/etc/vasilid/config.yaml",
		"path to the vasilid YAML configuration file")
	promAddr = flag.String("prom_address", ":9110",
		"address to listen on for Prometheus HTTP requests, when metrics are enabled")
	verbose = flag.Bool("verbose", false, "enable debug-level logging")
)

func newLogger(verbose bool) (*zap.Logger, error) {
	zapConfig := zap.NewDevelopmentConfig()
	if !verbose {
		zapConfig.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	zapConfig.DisableStacktrace = true
	return zapConfig.Build()
}

func main() {
	os.Exit(run())
}

// run contains main's logic so a recovered panic can still report a non-zero
// exit code instead of letting the process die uncontrolled, per spec §6's
// exit-code contract.
func run() (exitCode int) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "vasilid: fatal: %v\n", r)
			exitCode = 1
		}
	}()

	flag.Parse()

	log, err := newLogger(*verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "vasilid: failed to initialize logger: %v\n", err)
		return 1
	}
	defer log.Sync()

	cfg, err := config.Load(afero.NewOsFs(), *configPath)
	if err != nil {
		log.Error("failed to load configuration", zap.String("path", *configPath), zap.Error(err))
		return 1
	}

	registry := prometheus.NewRegistry()
	eng := engine.New(log, cfg, registry)

	if err := eng.Enumerate(cfg); err != nil {
		log.Error("failed to enumerate wireless interfaces", zap.Error(err))
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eng.Start(ctx)
	log.Info("vasilid started")

	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		metricsSrv = &http.Server{Addr: *promAddr, Handler: mux}
		go func() {
			log.Info("metrics listening", zap.String("addr", *promAddr))
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Warn("metrics server stopped", zap.Error(err))
			}
		}()
	}

	var webErrCh chan error
	if cfg.Web.Enabled {
		webErrCh = make(chan error, 1)
		webSrv := webview.NewServer(log, eng, fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port))
		go func() {
			if err := webSrv.Run(ctx); err != nil {
				webErrCh <- err
			}
		}()
	}

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-webErrCh:
		if err != nil {
			log.Error("webview failed to start", zap.Error(err))
			stop()
			eng.Stop()
			return 1
		}
	}

	eng.Stop()

	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}

	log.Info("vasilid stopped cleanly")
	return 0
}
