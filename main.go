// Package main is the entry point for the call limiter gateway.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	calllimiter "learn.calllimiter/api"
	"learn.calllimiter/gateway"
	"learn.calllimiter/metrics"
)

// main parses flags, builds the limiter from configuration and serves the gateway routes.
func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	port := flag.Int("p", 8080, "Port to run the HTTP server on")
	configPath := flag.String("config", "config.yaml", "Path to the configuration file")
	logLevelStr := flag.String("log-level", "info", "Logging level (trace, debug, info, warn, error, fatal, panic)")
	flag.Parse()

	logLevel, err := zerolog.ParseLevel(*logLevelStr)
	if err != nil {
		log.Fatal().Err(err).Str("log_level", *logLevelStr).Msg("Invalid log level provided")
	}
	zerolog.SetGlobalLevel(logLevel)

	log.Info().Str("config_path", *configPath).Msg("Starting application initialization")

	m, err := metrics.NewRateLimitMetrics(metrics.Options{})
	if err != nil {
		log.Fatal().Err(err).Msg("Application startup failed: Error registering metrics")
	}

	limiter, cfg, closer, err := calllimiter.NewLimiterFromConfigPath(*configPath, m)
	if err != nil {
		log.Fatal().Err(err).Str("config_path", *configPath).Msg("Application startup failed: Error initializing call limiter from config")
	}
	defer closer.Close()

	log.Info().Str("limiter_key", cfg.Key).Int("limit", cfg.Limit).Bool("forwarding", cfg.Forward != nil).Msg("Call limiter initialized")

	mux := http.NewServeMux()
	mux.Handle("/call", gateway.NewHandler(limiter))
	mux.Handle("/stats", gateway.NewStatsHandler(limiter))
	mux.Handle("/metrics", promhttp.Handler())

	addr := fmt.Sprintf(":%d", *port)
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	log.Info().Str("address", addr).Msg("Starting HTTP server")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Str("address", addr).Msg("HTTP server stopped")
	}
}
