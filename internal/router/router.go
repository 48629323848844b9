// Package router dispatches chat completions across a priority-ordered set
// of upstream providers with failover, response caching, health tracking
// and usage accounting.
package router

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/allaspectsdev/llmgate/internal/cache"
	"github.com/allaspectsdev/llmgate/internal/provider"
	"github.com/allaspectsdev/llmgate/internal/tracing"
)

const (
	DefaultAttemptTimeout   = 30 * time.Second
	DefaultDisableThreshold = 5
	DefaultTestPrompt       = "ping"

	// testMaxTokens bounds the diagnostic completion sent by TestAllProviders.
	testMaxTokens = 16
)

// Outcome labels a recorded attempt.
type Outcome string

const (
	OutcomeSuccess     Outcome = "success"
	OutcomeFailure     Outcome = "failure"
	OutcomeRateLimited Outcome = "rate_limited"
	OutcomeCacheHit    Outcome = "cache_hit"
	OutcomeProbeOK     Outcome = "probe_ok"
	OutcomeProbeFailed Outcome = "probe_failed"
)

// Attempt is one dispatch outcome handed to the AttemptRecorder.
type Attempt struct {
	RequestID string
	Timestamp time.Time
	Provider  string
	Model     string
	Outcome   Outcome
	Tokens    int
	Cost      float64
	Latency   time.Duration
	Error     string
}

// AttemptRecorder persists attempts. Recording failures are logged and
// never fail a completion.
type AttemptRecorder interface {
	RecordAttempt(ctx context.Context, a Attempt) error
}

// Settings configures a Router. Zero values select the defaults.
type Settings struct {
	CacheTTL         time.Duration
	CacheMaxEntries  int
	AttemptTimeout   time.Duration
	DisableThreshold int
	TestPrompt       string

	Logger   zerolog.Logger
	Recorder AttemptRecorder
	Clock    func() time.Time
}

// Router is safe for concurrent use. A single mutex guards descriptors,
// cache and usage; it is never held while a provider call is in flight.
type Router struct {
	mu      sync.Mutex
	entries []*entry
	byID    map[string]*entry
	nextSeq int
	cache   *cache.Cache

	attemptTimeout   time.Duration
	disableThreshold int
	testPrompt       string

	logger   zerolog.Logger
	recorder AttemptRecorder
	now      func() time.Time
}

// New creates an empty Router.
func New(s Settings) (*Router, error) {
	if s.Clock == nil {
		s.Clock = time.Now
	}
	if s.AttemptTimeout <= 0 {
		s.AttemptTimeout = DefaultAttemptTimeout
	}
	if s.DisableThreshold <= 0 {
		s.DisableThreshold = DefaultDisableThreshold
	}
	if strings.TrimSpace(s.TestPrompt) == "" {
		s.TestPrompt = DefaultTestPrompt
	}

	c, err := cache.New(s.CacheMaxEntries, s.CacheTTL, cache.WithClock(s.Clock))
	if err != nil {
		return nil, fmt.Errorf("router: %w", err)
	}

	return &Router{
		byID:             make(map[string]*entry),
		cache:            c,
		attemptTimeout:   s.AttemptTimeout,
		disableThreshold: s.DisableThreshold,
		testPrompt:       s.TestPrompt,
		logger:           s.Logger.With().Str("component", "router").Logger(),
		recorder:         s.Recorder,
		now:              s.Clock,
	}, nil
}

// Register adds a provider. Registration order breaks priority ties.
func (r *Router) Register(d Descriptor, p provider.Provider) error {
	d.ID = strings.TrimSpace(d.ID)
	if d.ID == "" {
		return fmt.Errorf("router: provider id cannot be empty")
	}
	if p == nil {
		return fmt.Errorf("router: provider %s: nil implementation", d.ID)
	}
	if d.CostPerToken < 0 {
		return fmt.Errorf("router: provider %s: cost_per_token must be non-negative", d.ID)
	}
	if d.Name == "" {
		d.Name = d.ID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[d.ID]; exists {
		return fmt.Errorf("router: provider %s already registered", d.ID)
	}

	e := &entry{
		desc:        d,
		provider:    p,
		seq:         r.nextSeq,
		healthScore: MaxHealth,
		bucket:      newTokenBucket(d.RateLimit, d.RateBurst, r.now()),
	}
	r.nextSeq++
	r.byID[d.ID] = e
	r.entries = append(r.entries, e)
	sort.SliceStable(r.entries, func(i, j int) bool {
		if r.entries[i].desc.Priority != r.entries[j].desc.Priority {
			return r.entries[i].desc.Priority < r.entries[j].desc.Priority
		}
		return r.entries[i].seq < r.entries[j].seq
	})
	return nil
}

// candidate is the per-attempt copy of an entry taken under the lock.
type candidate struct {
	id         string
	priority   int
	provider   provider.Provider
	credential string
	model      string
	maxTokens  int
	cost       float64
}

func (r *Router) candidate(e *entry, req *Request) candidate {
	model := req.Model
	if model == provider.AutoModel && e.desc.Model != "" {
		model = e.desc.Model
	}
	return candidate{
		id:         e.desc.ID,
		priority:   e.desc.Priority,
		provider:   e.provider,
		credential: e.desc.Credential,
		model:      model,
		maxTokens:  e.effectiveMaxTokens(req.MaxTokens),
		cost:       e.desc.CostPerToken,
	}
}

// eligibleLocked returns eligible entries in priority order.
func (r *Router) eligibleLocked() []*entry {
	out := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		if e.eligible() {
			out = append(out, e)
		}
	}
	return out
}

// Complete serves req from cache or dispatches it to eligible providers in
// priority order until one succeeds.
func (r *Router) Complete(ctx context.Context, req Request) (*Result, error) {
	if err := normalize(&req); err != nil {
		return nil, err
	}

	requestID := uuid.NewString()
	ctx, span := tracing.StartCompleteSpan(ctx, req.Model, len(req.Messages))
	defer span.End()

	logger := r.logger.With().Str("request_id", requestID).Logger()
	key := cache.KeyFor(req.Messages, req.Model, req.MaxTokens, req.Temperature)

	r.mu.Lock()
	if hit, ok := r.cache.Get(key); ok {
		r.mu.Unlock()
		logger.Debug().Str("provider", hit.ProviderID).Msg("cache hit")
		tracing.SetOutcome(ctx, hit.ProviderID, 0, true)
		r.record(ctx, Attempt{
			RequestID: requestID,
			Timestamp: r.now(),
			Provider:  hit.ProviderID,
			Model:     req.Model,
			Outcome:   OutcomeCacheHit,
		})
		return &Result{Text: hit.Text, ProviderID: hit.ProviderID, Cached: true, RequestID: requestID}, nil
	}
	candidates := r.eligibleLocked()
	r.mu.Unlock()

	if len(candidates) == 0 {
		err := newError(KindNoProvidersAvailable, "no enabled provider has a credential")
		tracing.RecordError(ctx, err)
		logger.Warn().Msg("no providers available")
		return nil, err
	}

	var (
		tried    []string
		failures []Failure
	)
	for _, e := range candidates {
		r.mu.Lock()
		// A concurrent call may have disabled this provider since selection.
		if !e.eligible() {
			r.mu.Unlock()
			continue
		}
		c := r.candidate(e, &req)
		if !e.bucket.allow(r.now()) {
			r.mu.Unlock()
			tried = append(tried, c.id)
			failures = append(failures, Failure{Provider: c.id, Message: "rate limited"})
			logger.Debug().Str("provider", c.id).Msg("provider rate limited, skipping")
			r.record(ctx, Attempt{
				RequestID: requestID,
				Timestamp: r.now(),
				Provider:  c.id,
				Model:     c.model,
				Outcome:   OutcomeRateLimited,
			})
			continue
		}
		r.mu.Unlock()

		tried = append(tried, c.id)
		comp, latency, err := r.send(ctx, c, req.Messages, req.Temperature)

		// The caller gave up; do not blame the provider for it.
		if err != nil && ctx.Err() != nil {
			tracing.RecordError(ctx, ctx.Err())
			return nil, fmt.Errorf("router: request %s canceled: %w", requestID, ctx.Err())
		}

		if err != nil {
			msg := err.Error()
			failures = append(failures, Failure{Provider: c.id, Message: msg})
			r.onFailure(logger, e, msg, true)
			r.record(ctx, Attempt{
				RequestID: requestID,
				Timestamp: r.now(),
				Provider:  c.id,
				Model:     c.model,
				Outcome:   OutcomeFailure,
				Latency:   latency,
				Error:     msg,
			})
			continue
		}

		result := r.onSuccess(key, e, c, comp)
		result.RequestID = requestID
		logger.Debug().
			Str("provider", c.id).
			Int("tokens", result.TokensUsed).
			Dur("latency", latency).
			Msg("completion succeeded")
		tracing.SetOutcome(ctx, c.id, result.TokensUsed, false)
		r.record(ctx, Attempt{
			RequestID: requestID,
			Timestamp: r.now(),
			Provider:  c.id,
			Model:     comp.Model,
			Outcome:   OutcomeSuccess,
			Tokens:    result.TokensUsed,
			Cost:      result.Cost,
			Latency:   latency,
		})
		return result, nil
	}

	if len(tried) == 0 {
		err := newError(KindNoProvidersAvailable, "every candidate was disabled before it could be tried")
		tracing.RecordError(ctx, err)
		return nil, err
	}

	err := &Error{
		Kind:           KindAllProvidersFailed,
		Message:        fmt.Sprintf("all %d providers failed", len(tried)),
		ProvidersTried: tried,
		Failures:       failures,
	}
	tracing.RecordError(ctx, err)
	logger.Error().Strs("providers_tried", tried).Msg("all providers failed")
	return nil, err
}

// send performs one bounded provider call without holding the lock.
func (r *Router) send(ctx context.Context, c candidate, messages []provider.Message, temperature float64) (*provider.Completion, time.Duration, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, r.attemptTimeout)
	defer cancel()

	attemptCtx, span := tracing.StartAttemptSpan(attemptCtx, c.id, c.priority)
	defer span.End()

	start := time.Now()
	comp, err := c.provider.Send(attemptCtx, &provider.Request{
		Messages:    messages,
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		Temperature: temperature,
		Credential:  c.credential,
	})
	latency := time.Since(start)

	if err == nil && (comp == nil || comp.Text == "") {
		err = &provider.Error{Provider: c.id, Message: "malformed response: empty completion"}
	}
	if err != nil {
		if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("timed out after %s: %w", r.attemptTimeout, err)
		}
		tracing.RecordError(attemptCtx, err)
		return nil, latency, err
	}
	if comp.TokensUsed < 0 {
		comp.TokensUsed = 0
	}
	if comp.Model == "" {
		comp.Model = c.model
	}
	return comp, latency, nil
}

// onFailure applies the health penalty. countUsage is false for probes.
func (r *Router) onFailure(logger zerolog.Logger, e *entry, msg string, countUsage bool) {
	r.mu.Lock()
	disabled := e.fail(msg, r.disableThreshold)
	if countUsage {
		e.usage.Requests++
		e.usage.Errors++
	}
	id, errorCount, health := e.desc.ID, e.errorCount, e.healthScore
	r.mu.Unlock()

	logger.Warn().
		Str("provider", id).
		Int("error_count", errorCount).
		Int("health_score", health).
		Str("error", msg).
		Msg("provider attempt failed")
	if disabled {
		logger.Error().
			Str("provider", id).
			Int("error_count", errorCount).
			Msg("provider disabled after repeated failures")
	}
}

func (r *Router) onSuccess(key cache.Key, e *entry, c candidate, comp *provider.Completion) *Result {
	cost := float64(comp.TokensUsed) * c.cost

	r.mu.Lock()
	defer r.mu.Unlock()

	r.cache.Add(key, cache.Entry{Text: comp.Text, ProviderID: c.id})
	e.reset()
	e.lastUsed = r.now()
	e.usage.Requests++
	e.usage.Tokens += int64(comp.TokensUsed)
	e.usage.Cost += cost

	return &Result{
		Text:       comp.Text,
		ProviderID: c.id,
		TokensUsed: comp.TokensUsed,
		Cost:       cost,
	}
}

func (r *Router) record(ctx context.Context, a Attempt) {
	if r.recorder == nil {
		return
	}
	if err := r.recorder.RecordAttempt(context.WithoutCancel(ctx), a); err != nil {
		r.logger.Warn().Err(err).Str("provider", a.Provider).Msg("recording attempt")
	}
}

// TestReport is the outcome of probing one provider.
type TestReport struct {
	ProviderID  string        `json:"providerId"`
	Success     bool          `json:"success"`
	Latency     time.Duration `json:"-"`
	LatencyMs   int64         `json:"latencyMs"`
	Error       string        `json:"error,omitempty"`
	HealthScore int           `json:"healthScore"`
	Enabled     bool          `json:"enabled"`
}

// TestAllProviders sends the test prompt to every eligible provider,
// bypassing the cache and rate limits. Health is updated exactly as for
// Complete; usage stats are not. Reports are in priority order.
func (r *Router) TestAllProviders(ctx context.Context) []TestReport {
	probe := Request{
		Messages:  []provider.Message{{Role: "user", Content: r.testPrompt}},
		Model:     provider.AutoModel,
		MaxTokens: testMaxTokens,
	}
	requestID := uuid.NewString()
	logger := r.logger.With().Str("request_id", requestID).Logger()

	r.mu.Lock()
	entries := r.eligibleLocked()
	candidates := make([]candidate, len(entries))
	for i, e := range entries {
		candidates[i] = r.candidate(e, &probe)
	}
	r.mu.Unlock()

	reports := make([]TestReport, len(entries))
	var wg sync.WaitGroup
	for i := range entries {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			e, c := entries[i], candidates[i]

			_, latency, err := r.send(ctx, c, probe.Messages, probe.Temperature)
			rep := TestReport{ProviderID: c.id, Success: err == nil, Latency: latency, LatencyMs: latency.Milliseconds()}

			a := Attempt{RequestID: requestID, Timestamp: r.now(), Provider: c.id, Model: c.model, Latency: latency}
			if err != nil {
				rep.Error = err.Error()
				r.onFailure(logger, e, rep.Error, false)
				a.Outcome, a.Error = OutcomeProbeFailed, rep.Error
			} else {
				r.mu.Lock()
				e.reset()
				r.mu.Unlock()
				a.Outcome = OutcomeProbeOK
			}
			r.record(ctx, a)

			r.mu.Lock()
			rep.HealthScore, rep.Enabled = e.healthScore, e.desc.Enabled
			r.mu.Unlock()
			reports[i] = rep
		}(i)
	}
	wg.Wait()
	return reports
}

// SetCredential replaces a provider's credential, re-enables it and resets
// its health.
func (r *Router) SetCredential(id, secret string) error {
	if strings.TrimSpace(secret) == "" {
		return newError(KindInvalidRequest, "credential for %s must not be empty", id)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.byID[id]
	if !ok {
		return newError(KindUnknownProvider, "provider %q is not registered", id)
	}
	e.desc.Credential = secret
	e.desc.Enabled = true
	e.reset()
	r.logger.Info().Str("provider", id).Msg("credential updated, provider enabled")
	return nil
}

// Enable re-enables a provider and resets its health.
func (r *Router) Enable(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.byID[id]
	if !ok {
		return newError(KindUnknownProvider, "provider %q is not registered", id)
	}
	e.desc.Enabled = true
	e.reset()
	r.logger.Info().Str("provider", id).Msg("provider enabled")
	return nil
}

// Disable removes a provider from candidate selection.
func (r *Router) Disable(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.byID[id]
	if !ok {
		return newError(KindUnknownProvider, "provider %q is not registered", id)
	}
	e.desc.Enabled = false
	r.logger.Info().Str("provider", id).Msg("provider disabled")
	return nil
}

// Snapshot is a consistent copy of router state.
type Snapshot struct {
	Providers []ProviderStatus      `json:"providers"`
	Usage     map[string]UsageStats `json:"usage"`
	Cache     cache.Stats           `json:"cache"`
}

// Snapshot returns providers in priority order with their usage.
func (r *Router) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Snapshot{
		Providers: make([]ProviderStatus, 0, len(r.entries)),
		Usage:     make(map[string]UsageStats, len(r.entries)),
		Cache:     r.cache.Stats(),
	}
	for _, e := range r.entries {
		s.Providers = append(s.Providers, e.status())
		s.Usage[e.desc.ID] = e.usage
	}
	return s
}

// Provider returns the status of one provider.
func (r *Router) Provider(id string) (ProviderStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.byID[id]
	if !ok {
		return ProviderStatus{}, newError(KindUnknownProvider, "provider %q is not registered", id)
	}
	return e.status(), nil
}

// PurgeExpired drops expired cache entries and returns how many were removed.
func (r *Router) PurgeExpired() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cache.Sweep()
}
