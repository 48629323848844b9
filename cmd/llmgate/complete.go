package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/allaspectsdev/llmgate/internal/config"
	"github.com/allaspectsdev/llmgate/internal/daemon"
	"github.com/allaspectsdev/llmgate/internal/provider"
	"github.com/allaspectsdev/llmgate/internal/router"
	"github.com/allaspectsdev/llmgate/internal/store"
	"github.com/allaspectsdev/llmgate/internal/vault"
)

// localRouter builds an in-process router for one-shot commands. Attempts
// are logged to the daemon's database when the store is enabled.
func localRouter(cfg *config.Config, verbose bool) (*router.Router, func(), error) {
	level := zerolog.WarnLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(level).With().Timestamp().Logger()

	var rec router.AttemptRecorder
	cleanup := func() {}
	if cfg.Store.Enabled {
		st, err := store.Open(filepath.Join(cfg.Server.DataDir, "llmgate.db"))
		if err != nil {
			logger.Warn().Err(err).Msg("attempt log unavailable")
		} else {
			rec = store.NewAttemptAdapter(st)
			cleanup = func() { st.Close() }
		}
	}

	rtr, err := daemon.BuildRouter(cfg, provider.NewRegistry(), vault.New(), rec, logger)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return rtr, cleanup, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func cmdComplete(args []string) {
	path, rest := splitConfigFlag(args)

	fs := flag.NewFlagSet("complete", flag.ExitOnError)
	model := fs.String("model", provider.AutoModel, "model name, or auto for each provider's default")
	maxTokens := fs.Int("max-tokens", 1024, "maximum tokens to generate")
	temperature := fs.Float64("temperature", 0.7, "sampling temperature (0-2)")
	system := fs.String("system", "", "optional system prompt")
	asJSON := fs.Bool("json", false, "print the full result as JSON")
	verbose := fs.Bool("v", false, "log each provider attempt")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: llmgate complete [options] <prompt | ->")
		fs.PrintDefaults()
	}
	_ = fs.Parse(rest)

	prompt, err := readPrompt(fs.Args(), os.Stdin)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	cfg := mustLoadConfig(path)
	rtr, cleanup, err := localRouter(cfg, *verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	var msgs []provider.Message
	if *system != "" {
		msgs = append(msgs, provider.Message{Role: "system", Content: *system})
	}
	msgs = append(msgs, provider.Message{Role: "user", Content: prompt})

	ctx, cancel := signalContext()
	defer cancel()

	res, err := rtr.Complete(ctx, router.Request{
		Messages:    msgs,
		Model:       *model,
		MaxTokens:   *maxTokens,
		Temperature: *temperature,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		cleanup()
		os.Exit(1)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(res)
		return
	}
	fmt.Println(res.Text)
	fmt.Fprintf(os.Stderr, "\n[%s, %d tokens, $%.6f]\n", res.ProviderID, res.TokensUsed, res.Cost)
}

// readPrompt joins positional args, or reads stdin when there are none or
// the only arg is "-".
func readPrompt(args []string, stdin io.Reader) (string, error) {
	if len(args) > 0 && !(len(args) == 1 && args[0] == "-") {
		return strings.Join(args, " "), nil
	}
	b, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("reading prompt: %w", err)
	}
	prompt := strings.TrimSpace(string(b))
	if prompt == "" {
		return "", fmt.Errorf("empty prompt")
	}
	return prompt, nil
}

func cmdTestProviders(args []string) {
	path, rest := splitConfigFlag(args)
	asJSON := false
	for _, a := range rest {
		if a == "--json" {
			asJSON = true
		}
	}

	cfg := mustLoadConfig(path)
	rtr, cleanup, err := localRouter(cfg, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	ctx, cancel := signalContext()
	defer cancel()
	reports := rtr.TestAllProviders(ctx)

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(reports)
		return
	}

	failed := 0
	fmt.Printf("%-14s %-6s %8s %7s  %s\n", "PROVIDER", "OK", "LATENCY", "HEALTH", "ERROR")
	for _, r := range reports {
		ok := "yes"
		if !r.Success {
			ok = "no"
			failed++
		}
		fmt.Printf("%-14s %-6s %6dms %7d  %s\n", r.ProviderID, ok, r.LatencyMs, r.HealthScore, r.Error)
	}
	if failed == len(reports) {
		cleanup()
		os.Exit(1)
	}
}
