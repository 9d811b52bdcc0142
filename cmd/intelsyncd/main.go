// Command intelsyncd runs the offline record reconciliation daemon: a REST
// API for authoring and conflict resolution, a WebSocket event feed, a
// Prometheus metrics endpoint, and an optional background sync scheduler.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jcarville/intelsync/internal/crypto"
	"github.com/jcarville/intelsync/internal/events"
	"github.com/jcarville/intelsync/internal/export"
	"github.com/jcarville/intelsync/internal/kv"
	"github.com/jcarville/intelsync/internal/logging"
	"github.com/jcarville/intelsync/internal/services"
	"github.com/jcarville/intelsync/internal/settings"
	"github.com/jcarville/intelsync/internal/store"
	syncpkg "github.com/jcarville/intelsync/internal/sync"
	"github.com/jcarville/intelsync/internal/sync/scheduler"
	"github.com/jcarville/intelsync/internal/telemetry"
)

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	logging.Init(os.Stdout, logging.LevelInfo)
	defer logging.Get().Sync()

	dataDir := env("INTELSYNC_DATA_DIR", "./data")
	port := env("INTELSYNC_PORT", "8090")
	remoteURL := os.Getenv("INTELSYNC_REMOTE_URL")
	settingsFile := env("INTELSYNC_SETTINGS_FILE", "")

	kvStore, err := kv.OpenSQLite(dataDir)
	if err != nil {
		logging.Error("failed to open local storage", err, map[string]interface{}{"data_dir": dataDir})
		os.Exit(1)
	}
	defer kvStore.Close()

	// Credential handling: a value from the environment is sealed into the
	// vault; otherwise the previously sealed one is used.
	hostname, _ := os.Hostname()
	vault := crypto.NewVault(kvStore, hostname)
	credential := os.Getenv("INTELSYNC_CREDENTIAL")
	if credential != "" {
		if err := vault.StoreCredential(credential); err != nil {
			logging.Warn("failed to persist credential", map[string]interface{}{"error": err.Error()})
		}
	} else if stored, ok, err := vault.LoadCredential(); err != nil {
		logging.Warn("failed to load persisted credential", map[string]interface{}{"error": err.Error()})
	} else if ok {
		credential = stored
	}

	mgr := settings.NewManager(kvStore, settingsFile)
	records := store.New(kvStore)
	notifier := events.NewNotifier()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	metrics := telemetry.New(registry)

	var submitter syncpkg.Submitter
	if remoteURL != "" {
		submitter = syncpkg.NewHTTPSubmitter(remoteURL, nil)
	} else {
		logging.Warn("no remote URL configured, sync runs will be rejected", nil)
	}
	engine := syncpkg.NewEngine(records, mgr, notifier, submitter, kvStore, metrics)

	sched := scheduler.New(engine, mgr, scheduler.Config{Credential: credential})
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	sched.Start(ctx)
	defer sched.Stop()

	hub := NewHub()
	defer hub.Close()
	unbridge := hub.Bridge(notifier)
	defer unbridge()

	svc := services.New(records, mgr, notifier, engine)

	mux := http.NewServeMux()
	(&api{svc: svc, exporter: export.NewService(records), scheduler: sched}).routes(mux)
	mux.Handle("GET /ws", handleWebSocket(hub))
	mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:        ":" + port,
		Handler:     mux,
		ReadTimeout: 30 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logging.Info("intelsyncd listening", map[string]interface{}{
		"port":       port,
		"remote_url": remoteURL,
		"data_dir":   dataDir,
	})
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logging.Error("server exited", err, nil)
		os.Exit(1)
	}
	logging.Info("intelsyncd stopped", nil)
}
