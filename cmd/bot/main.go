// Package main runs the trading bot: discovery, buy pipeline, risk engine,
// and a small HTTP control surface with Prometheus metrics.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/Whit-fire/MHFTSB/internal/config"
	"github.com/Whit-fire/MHFTSB/internal/observability"
	"github.com/Whit-fire/MHFTSB/internal/storage"
	chstore "github.com/Whit-fire/MHFTSB/internal/storage/clickhouse"
	"github.com/Whit-fire/MHFTSB/internal/storage/memory"
	"github.com/Whit-fire/MHFTSB/internal/storage/migrations"
	pgstore "github.com/Whit-fire/MHFTSB/internal/storage/postgres"
	"github.com/Whit-fire/MHFTSB/internal/trader"
)

func main() {
	// .env is optional; system env wins when both are set.
	_ = godotenv.Load()

	configPath := flag.String("config", os.Getenv("BOT_CONFIG"), "Path to YAML config overlay")
	simulation := flag.Bool("simulation", false, "Run with synthetic candidates and simulated execution")
	httpAddr := flag.String("http-addr", ":8080", "Control surface and metrics HTTP address")
	flag.Parse()

	logger := log.New(os.Stdout, "", log.LstdFlags)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if *simulation {
		cfg.Simulation = true
	}
	if !cfg.Simulation && len(cfg.Endpoints) == 0 {
		logger.Fatal("no endpoints configured; provide a config file or run with --simulation")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	opts, cleanup, err := storageOptions(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("storage setup: %v", err)
	}
	defer cleanup()

	bot, err := trader.New(cfg, logger, opts...)
	if err != nil {
		logger.Fatalf("assemble trader: %v", err)
	}

	srv := &http.Server{Addr: *httpAddr, Handler: controlMux(bot)}
	go func() {
		logger.Printf("[http] control surface on %s", *httpAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Printf("[http] server error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("received %v, shutting down", sig)
		cancel()

		select {
		case <-sigCh:
			logger.Printf("second signal, forcing exit")
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Printf("graceful shutdown timed out, forcing exit")
			os.Exit(1)
		}
	}()

	err = bot.Run(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatalf("trader error: %v", err)
	}
	logger.Println("shutdown complete")
}

// storageOptions picks persistence backends from the DSNs: Postgres for
// positions and events, ClickHouse for latency samples, memory otherwise.
func storageOptions(ctx context.Context, cfg *config.Config, logger *log.Logger) ([]trader.Option, func(), error) {
	var (
		opts     []trader.Option
		cleanups []func()
	)
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	if dsn := cfg.Storage.PostgresDSN; dsn != "" {
		pool, err := pgstore.NewPool(ctx, dsn)
		if err != nil {
			return nil, cleanup, fmt.Errorf("connect to postgres: %w", err)
		}
		cleanups = append(cleanups, pool.Close)
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			return nil, cleanup, fmt.Errorf("postgres migrations: %w", err)
		}
		opts = append(opts,
			trader.WithPositionStore(pgstore.NewPositionStore(pool)),
			trader.WithEventSink(storage.NewEventLogSink(pgstore.NewEventStore(pool), logger)),
		)
		logger.Printf("[storage] positions and events on postgres")
	} else {
		opts = append(opts, trader.WithPositionStore(memory.NewPositionStore()))
	}

	if dsn := cfg.Storage.ClickHouseDSN; dsn != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, dsn)
		if err != nil {
			return nil, cleanup, fmt.Errorf("clickhouse migrations: %w", err)
		}
		cleanups = append(cleanups, func() { _ = conn.Close() })

		sink := storage.NewBufferedSink(chstore.NewLatencyStore(conn), logger)
		go sink.Run(ctx)
		opts = append(opts, trader.WithLatencySink(sink))
		logger.Printf("[storage] latency samples on clickhouse")
	}

	return opts, cleanup, nil
}

// controlMux exposes the downstream interface over HTTP.
func controlMux(bot *trader.Trader) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /status", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, bot.FullStatus())
	})
	mux.HandleFunc("GET /positions", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]interface{}{
			"open":   bot.OpenPositions(),
			"closed": bot.ClosedPositions(50),
		})
	})
	mux.HandleFunc("GET /events", func(w http.ResponseWriter, r *http.Request) {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		if limit <= 0 {
			limit = 100
		}
		writeJSON(w, bot.RecentEvents(limit))
	})
	mux.HandleFunc("POST /positions/{id}/close", func(w http.ResponseWriter, r *http.Request) {
		pos, ok := bot.ClosePosition(r.Context(), r.PathValue("id"), "manual")
		if !ok {
			http.Error(w, "position not found", http.StatusNotFound)
			return
		}
		writeJSON(w, pos)
	})
	mux.HandleFunc("POST /positions/{id}/stop-loss", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Percent float64 `json:"percent"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if !bot.SetStopLoss(r.PathValue("id"), body.Percent) {
			http.Error(w, "position not found", http.StatusNotFound)
			return
		}
		writeJSON(w, map[string]bool{"ok": true})
	})
	mux.HandleFunc("POST /close-all", func(w http.ResponseWriter, r *http.Request) {
		closed := bot.CloseAll(r.Context(), "manual")
		writeJSON(w, map[string]int{"closed": len(closed)})
	})
	mux.HandleFunc("POST /panic", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]int{"closed": bot.Panic(r.Context())})
	})
	mux.HandleFunc("POST /config", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Path  string `json:"path"`
			Value string `json:"value"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := bot.UpdateConfig(body.Path, body.Value); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, map[string]bool{"ok": true})
	})
	mux.Handle("GET /metrics", observability.Handler())

	return mux
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
