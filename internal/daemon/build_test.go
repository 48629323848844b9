package daemon

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/allaspectsdev/llmgate/internal/config"
	"github.com/allaspectsdev/llmgate/internal/provider"
	"github.com/allaspectsdev/llmgate/internal/router"
	"github.com/allaspectsdev/llmgate/internal/store"
	"github.com/allaspectsdev/llmgate/internal/testutil"
)

type mapResolver map[string]string

func (m mapResolver) Resolve(id, _, _ string) (string, error) {
	if s, ok := m[id]; ok {
		return s, nil
	}
	return "", errors.New("not found")
}

func TestBuildRouter_OrderAndEligibility(t *testing.T) {
	cfg := testutil.NewTestConfig(t, "http://127.0.0.1:1")
	cfg.Providers["alpha"] = config.ProviderConfig{Type: "anthropic", APIBase: "http://127.0.0.1:1", Priority: 1, Enabled: true}
	cfg.Providers["zzz"] = config.ProviderConfig{Type: "openai", APIBase: "http://127.0.0.1:1", Priority: 0, Enabled: false}

	rtr, err := BuildRouter(cfg, provider.NewRegistry(), mapResolver{"primary": "k", "alpha": "k", "zzz": "k"}, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("BuildRouter: %v", err)
	}

	snap := rtr.Snapshot()
	var ids []string
	for _, p := range snap.Providers {
		ids = append(ids, p.ID)
	}
	if got := strings.Join(ids, ","); got != "zzz,alpha,primary,backup" {
		t.Errorf("order = %s, want zzz,alpha,primary,backup", got)
	}

	byID := map[string]router.ProviderStatus{}
	for _, p := range snap.Providers {
		byID[p.ID] = p
	}
	if byID["zzz"].Eligible {
		t.Error("disabled provider must not be eligible")
	}
	if !byID["primary"].Eligible || !byID["alpha"].Eligible {
		t.Error("credentialed enabled providers should be eligible")
	}
	if byID["backup"].Eligible || byID["backup"].HasCredential {
		t.Errorf("backup without credential = %+v", byID["backup"])
	}
}

func TestBuildRouter_UnknownType(t *testing.T) {
	cfg := testutil.NewTestConfig(t, "http://127.0.0.1:1")
	cfg.Providers["odd"] = config.ProviderConfig{Type: "grpc", APIBase: "x", Enabled: true}

	if _, err := BuildRouter(cfg, provider.NewRegistry(), nil, nil, zerolog.Nop()); err == nil {
		t.Fatal("expected error for unknown provider type")
	}
}

func TestBuildRouter_EndToEndFailover(t *testing.T) {
	var (
		mu    sync.Mutex
		calls []string
	)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		mu.Lock()
		calls = append(calls, auth)
		mu.Unlock()
		if auth == "Bearer primary-key" {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":{"message":"overloaded"}}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(testutil.SampleOpenAIResponse("hello from backup"))
	}))
	defer upstream.Close()

	cfg := testutil.NewTestConfig(t, upstream.URL)
	t.Setenv("TEST_PRIMARY_KEY", "primary-key")
	t.Setenv("TEST_BACKUP_KEY", "backup-key")

	st := testutil.NewTestStore(t)
	rtr, err := BuildRouter(cfg, provider.NewRegistry(), envResolver{}, store.NewAttemptAdapter(st), zerolog.Nop())
	if err != nil {
		t.Fatalf("BuildRouter: %v", err)
	}

	res, err := rtr.Complete(context.Background(), router.Request{
		Messages:  testutil.SampleMessages(1),
		MaxTokens: 64,
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if res.ProviderID != "backup" || res.Text != "hello from backup" || res.TokensUsed != 37 {
		t.Errorf("result = %+v", res)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(calls) != 2 {
		t.Errorf("upstream calls = %v, want primary then backup", calls)
	}

	rows, err := st.ListAttempts(context.Background(), "", 10, 0)
	if err != nil || len(rows) != 2 {
		t.Fatalf("attempt rows = %d, %v", len(rows), err)
	}
	if rows[1].Provider != "primary" || rows[1].Outcome != "failure" || !strings.Contains(rows[1].ErrorMessage, "overloaded") {
		t.Errorf("primary attempt = %+v", rows[1])
	}
}

// envResolver reads credential_env only.
type envResolver struct{}

func (envResolver) Resolve(_, _, env string) (string, error) {
	if v := os.Getenv(env); v != "" {
		return v, nil
	}
	return "", errors.New("unset")
}

func TestPruneAttempts(t *testing.T) {
	st := testutil.NewTestStore(t)
	ad := store.NewAttemptAdapter(st)
	ctx := context.Background()

	_ = ad.RecordAttempt(ctx, router.Attempt{RequestID: "old", Timestamp: time.Now().AddDate(0, 0, -10), Provider: "p", Outcome: router.OutcomeSuccess})
	_ = ad.RecordAttempt(ctx, router.Attempt{RequestID: "new", Timestamp: time.Now(), Provider: "p", Outcome: router.OutcomeSuccess})

	pruneAttempts(nil, 5)
	pruneAttempts(st, 0)
	if rows, _ := st.ListAttempts(ctx, "", 10, 0); len(rows) != 2 {
		t.Fatalf("no-op prune removed rows: %d left", len(rows))
	}

	pruneAttempts(st, 5)
	rows, _ := st.ListAttempts(ctx, "", 10, 0)
	if len(rows) != 1 || rows[0].RequestID != "new" {
		t.Errorf("rows after prune = %+v", rows)
	}
}

func TestRunMaintenance_StopsOnCancel(t *testing.T) {
	rtr, err := router.New(router.Settings{Logger: zerolog.Nop()})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		runMaintenance(ctx, rtr, nil, 30)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("runMaintenance did not return after cancel")
	}
}

// ---------------------------------------------------------------------------
// Logging and service helpers
// ---------------------------------------------------------------------------

func TestParseLogLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"trace":   zerolog.TraceLevel,
		"DEBUG":   zerolog.DebugLevel,
		" warn ":  zerolog.WarnLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"bogus":   zerolog.InfoLevel,
	}
	for in, want := range tests {
		if got := ParseLogLevel(in); got != want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestSetupLogger_WritesFile(t *testing.T) {
	prevLevel := zerolog.GlobalLevel()
	t.Cleanup(func() { zerolog.SetGlobalLevel(prevLevel) })

	dir := filepath.Join(t.TempDir(), "data")
	closer, err := SetupLogger(dir, "debug", false)
	if err != nil {
		t.Fatalf("SetupLogger: %v", err)
	}
	defer closer.Close()

	if zerolog.GlobalLevel() != zerolog.DebugLevel {
		t.Errorf("global level = %v", zerolog.GlobalLevel())
	}
	if _, err := os.Stat(filepath.Join(dir, "llmgate.log")); err != nil {
		t.Errorf("log file not created: %v", err)
	}
}

func TestRenderService(t *testing.T) {
	spec := ServiceSpec{Label: serviceLabel, ProgramPath: "/usr/local/bin/llmgate", DataDir: "/home/u/.llmgate"}

	rel, content, err := RenderService("linux", spec)
	if err != nil {
		t.Fatalf("RenderService(linux): %v", err)
	}
	if rel != filepath.Join(".config", "systemd", "user", "llmgate.service") {
		t.Errorf("linux path = %q", rel)
	}
	if !strings.Contains(string(content), "ExecStart=/usr/local/bin/llmgate start --foreground") {
		t.Errorf("systemd unit:\n%s", content)
	}

	rel, content, err = RenderService("darwin", spec)
	if err != nil {
		t.Fatalf("RenderService(darwin): %v", err)
	}
	if !strings.HasSuffix(rel, serviceLabel+".plist") {
		t.Errorf("darwin path = %q", rel)
	}
	if !strings.Contains(string(content), "<string>/home/u/.llmgate/llmgate.out.log</string>") {
		t.Errorf("plist:\n%s", content)
	}

	if _, _, err := RenderService("plan9", spec); err == nil {
		t.Error("expected error for unsupported OS")
	}
}
