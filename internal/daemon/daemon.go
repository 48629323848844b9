package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/allaspectsdev/llmgate/internal/config"
	"github.com/allaspectsdev/llmgate/internal/metrics"
	"github.com/allaspectsdev/llmgate/internal/provider"
	"github.com/allaspectsdev/llmgate/internal/router"
	"github.com/allaspectsdev/llmgate/internal/server"
	"github.com/allaspectsdev/llmgate/internal/store"
	"github.com/allaspectsdev/llmgate/internal/tracing"
	"github.com/allaspectsdev/llmgate/internal/vault"
	"github.com/allaspectsdev/llmgate/internal/version"
)

const (
	cacheSweepInterval = time.Minute
	pruneInterval      = time.Hour
	shutdownTimeout    = 30 * time.Second
)

// Run initialises every subsystem, serves the HTTP API and blocks until a
// shutdown signal is received.
func Run(cfg *config.Config, foreground bool) error {
	// 1. Logger.
	dataDir := cfg.Server.DataDir
	logCloser, err := SetupLogger(dataDir, cfg.Server.LogLevel, foreground)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	log.Info().
		Str("version", version.Version).
		Str("data_dir", dataDir).
		Bool("foreground", foreground).
		Msg("llmgate starting")

	// 2. PID file.
	if err := AcquirePID(dataDir); err != nil {
		return err
	}
	defer func() {
		if err := RemovePID(dataDir); err != nil {
			log.Error().Err(err).Msg("failed to remove PID file")
		}
	}()

	// 3. Tracing.
	if cfg.Tracing.Enabled {
		shutdownTracing, err := tracing.Init(context.Background(), tracing.Options{
			ServiceName: cfg.Tracing.ServiceName,
			Version:     version.Version,
			Exporter:    cfg.Tracing.Exporter,
			Endpoint:    cfg.Tracing.Endpoint,
			SampleRate:  cfg.Tracing.SampleRate,
			Insecure:    cfg.Tracing.Insecure,
		})
		if err != nil {
			return fmt.Errorf("initialising tracing: %w", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTracing(ctx); err != nil {
				log.Error().Err(err).Msg("tracing shutdown error")
			}
		}()
		log.Info().Str("exporter", cfg.Tracing.Exporter).Str("endpoint", cfg.Tracing.Endpoint).Msg("tracing enabled")
	}

	// 4. Attempt store.
	var (
		st       *store.Store
		recorder router.AttemptRecorder
	)
	if cfg.Store.Enabled {
		dbPath := filepath.Join(dataDir, "llmgate.db")
		st, err = store.Open(dbPath)
		if err != nil {
			return fmt.Errorf("opening store: %w", err)
		}
		defer st.Close()
		recorder = store.NewAttemptAdapter(st)
		log.Info().Str("db_path", dbPath).Msg("store opened")
	}

	// 5. Router.
	rtr, err := BuildRouter(cfg, provider.NewRegistry(), vault.New(), recorder, log.Logger)
	if err != nil {
		return err
	}
	eligible := 0
	for _, p := range rtr.Snapshot().Providers {
		if p.Eligible {
			eligible++
		}
	}
	log.Info().Int("providers", len(cfg.Providers)).Int("eligible", eligible).Msg("router initialized")

	// 6. Config watcher.
	if configFile := config.ConfigFilePath(); configFile != "" {
		w, err := config.Watch(configFile)
		if err != nil {
			log.Warn().Err(err).Msg("failed to start config watcher; continuing without hot-reload")
		} else {
			defer w.Close()
			w.OnChange(func(r config.Reload) {
				if r.LogLevelChanged() {
					zerolog.SetGlobalLevel(ParseLogLevel(r.New.Server.LogLevel))
					log.Info().Str("log_level", r.New.Server.LogLevel).Msg("log level updated")
				}
				if sections := r.RestartRequired(); len(sections) > 0 {
					log.Warn().Strs("sections", sections).Msg("config changes apply after restart")
				}
			})
			log.Info().Str("file", configFile).Msg("config watcher started")
		}
	}

	// 7. Background maintenance.
	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()
	maintDone := make(chan struct{})
	go func() {
		defer close(maintDone)
		runMaintenance(bgCtx, rtr, st, cfg.Store.RetentionDays)
	}()

	// 8. HTTP API.
	opts := server.Options{
		Addr:         cfg.Server.Addr(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
		MaxBodySize:  cfg.Server.MaxBodySize,
		Tracing:      cfg.Tracing.Enabled,
		Logger:       log.Logger,
	}
	if cfg.Auth.Enabled {
		opts.AuthToken = cfg.Auth.Token
	}
	if st != nil {
		opts.Attempts = st
	}
	if cfg.Metrics.Enabled {
		opts.Metrics = metrics.New(rtr)
	}
	srv := server.NewServer(rtr, opts)

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", opts.Addr).Msg("API server starting")
		if err := srv.Start(); err != nil {
			errCh <- err
		}
	}()

	log.Info().Int("port", cfg.Server.Port).Bool("auth", opts.AuthToken != "").Msg("llmgate is ready")
	if foreground {
		fmt.Printf("\n  llmgate is running!\n")
		fmt.Printf("  API: http://%s\n\n", opts.Addr)
	}

	// 9. Wait for shutdown signal or fatal error.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	case err := <-errCh:
		log.Error().Err(err).Msg("fatal server error")
		return err
	}

	// 10. Graceful shutdown. Background work stops before the store closes.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("API server shutdown error")
	}
	bgCancel()
	<-maintDone

	log.Info().Msg("llmgate stopped")
	return nil
}

// runMaintenance sweeps expired cache entries every minute and prunes the
// attempt log every hour until ctx is cancelled.
func runMaintenance(ctx context.Context, rtr *router.Router, st *store.Store, retentionDays int) {
	sweep := time.NewTicker(cacheSweepInterval)
	defer sweep.Stop()
	prune := time.NewTicker(pruneInterval)
	defer prune.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sweep.C:
			if n := rtr.PurgeExpired(); n > 0 {
				log.Debug().Int("entries", n).Msg("expired cache entries purged")
			}
		case <-prune.C:
			pruneAttempts(st, retentionDays)
		}
	}
}

func pruneAttempts(st *store.Store, retentionDays int) {
	if st == nil || retentionDays <= 0 {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("attempt pruner: recovered from panic")
		}
	}()
	n, err := st.Prune(retentionDays)
	if err != nil {
		log.Error().Err(err).Msg("attempt pruning failed")
	} else if n > 0 {
		log.Info().Int64("rows", n).Int("retention_days", retentionDays).Msg("pruned old attempts")
	}
}

// Stop reads the PID file and sends SIGTERM to the running daemon.
func Stop(dataDir string) error {
	pid, err := ReadPID(dataDir)
	if err != nil {
		return fmt.Errorf("llmgate does not appear to be running: %w", err)
	}

	if !isProcessAlive(pid) {
		if rmErr := RemovePID(dataDir); rmErr != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to remove stale PID file: %v\n", rmErr)
		}
		return fmt.Errorf("llmgate is not running (stale PID file removed)")
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("finding process %d: %w", pid, err)
	}
	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("sending SIGTERM to process %d: %w", pid, err)
	}
	fmt.Printf("Sent SIGTERM to llmgate (PID %d)\n", pid)

	for i := 0; i < 30; i++ {
		time.Sleep(100 * time.Millisecond)
		if !isProcessAlive(pid) {
			return nil
		}
	}
	return nil
}

// Status reports whether the daemon is running and, if the API answers,
// prints each provider's state.
func Status(cfg *config.Config) error {
	dataDir := cfg.Server.DataDir
	if !IsRunning(dataDir) {
		fmt.Println("llmgate is not running")
		return nil
	}

	pid, _ := ReadPID(dataDir)
	fmt.Printf("llmgate is running (PID %d)\n", pid)

	providers, err := fetchProviders(cfg)
	if err != nil {
		fmt.Printf("  (API unreachable: %v)\n", err)
		return nil
	}

	fmt.Println()
	fmt.Printf("  %-14s %-8s %-8s %-7s %-7s %s\n", "PROVIDER", "PRIORITY", "ENABLED", "HEALTH", "ERRORS", "LAST ERROR")
	for _, p := range providers {
		fmt.Printf("  %-14s %-8d %-8t %-7d %-7d %s\n", p.ID, p.Priority, p.Enabled, p.HealthScore, p.ErrorCount, p.LastError)
	}
	return nil
}

func fetchProviders(cfg *config.Config) ([]router.ProviderStatus, error) {
	host := cfg.Server.BindAddress
	if host == "" || host == "0.0.0.0" {
		host = "127.0.0.1"
	}
	url := fmt.Sprintf("http://%s:%d/v1/providers", host, cfg.Server.Port)

	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if cfg.Auth.Enabled {
		req.Header.Set("Authorization", "Bearer "+cfg.Auth.Token)
	}

	client := &http.Client{Timeout: 3 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %s", resp.Status)
	}

	var body struct {
		Providers []router.ProviderStatus `json:"providers"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	return body.Providers, nil
}
