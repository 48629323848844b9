package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/allaspectsdev/llmgate/internal/router"
)

// defaultMaxBodySize applies when Options.MaxBodySize is zero.
const defaultMaxBodySize = 4 << 20

// API holds the HTTP handlers.
type API struct {
	router      Router
	attempts    AttemptLog
	logger      zerolog.Logger
	maxBodySize int64
}

// HandleHealth reports liveness and how many providers can take traffic.
func (a *API) HandleHealth(w http.ResponseWriter, r *http.Request) {
	snap := a.router.Snapshot()
	eligible := 0
	for _, p := range snap.Providers {
		if p.Eligible {
			eligible++
		}
	}
	status := "ok"
	if eligible == 0 {
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    status,
		"providers": len(snap.Providers),
		"eligible":  eligible,
	})
}

// HandleComplete decodes a completion request and runs it through the router.
func (a *API) HandleComplete(w http.ResponseWriter, r *http.Request) {
	limit := a.maxBodySize
	if limit <= 0 {
		limit = defaultMaxBodySize
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	var req router.Request
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSONError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeRouterError(w, &router.Error{Kind: router.KindInvalidRequest, Message: "invalid JSON body: " + err.Error()})
		return
	}

	res, err := a.router.Complete(r.Context(), req)
	if err != nil {
		a.logger.Debug().Err(err).Str("http_request_id", middleware.GetReqID(r.Context())).Msg("complete failed")
		writeRouterError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleProviders lists every registered provider in priority order.
func (a *API) HandleProviders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"providers": a.router.Snapshot().Providers,
	})
}

// HandleProvider returns one provider's status.
func (a *API) HandleProvider(w http.ResponseWriter, r *http.Request) {
	status, err := a.router.Provider(chi.URLParam(r, "id"))
	if err != nil {
		writeRouterError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// HandleTestProviders probes every eligible provider.
func (a *API) HandleTestProviders(w http.ResponseWriter, r *http.Request) {
	reports := a.router.TestAllProviders(r.Context())
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"results": reports,
	})
}

type credentialRequest struct {
	Secret string `json:"secret"`
}

// HandleSetCredential replaces a provider credential and re-enables it.
func (a *API) HandleSetCredential(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 64<<10)
	var body credentialRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeRouterError(w, &router.Error{Kind: router.KindInvalidRequest, Message: "invalid JSON body: " + err.Error()})
		return
	}

	id := chi.URLParam(r, "id")
	if err := a.router.SetCredential(id, body.Secret); err != nil {
		writeRouterError(w, err)
		return
	}
	a.logger.Info().Str("provider", id).Msg("credential updated via API")
	a.writeProvider(w, id)
}

// HandleEnable re-enables a provider and resets its health.
func (a *API) HandleEnable(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := a.router.Enable(id); err != nil {
		writeRouterError(w, err)
		return
	}
	a.writeProvider(w, id)
}

// HandleDisable takes a provider out of rotation.
func (a *API) HandleDisable(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := a.router.Disable(id); err != nil {
		writeRouterError(w, err)
		return
	}
	a.writeProvider(w, id)
}

func (a *API) writeProvider(w http.ResponseWriter, id string) {
	status, err := a.router.Provider(id)
	if err != nil {
		writeRouterError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// HandleUsage returns in-memory usage counters and cache statistics. With
// ?since=<duration> it also returns totals from the attempt log.
func (a *API) HandleUsage(w http.ResponseWriter, r *http.Request) {
	snap := a.router.Snapshot()
	resp := map[string]interface{}{
		"usage": snap.Usage,
		"cache": snap.Cache,
	}

	if raw := r.URL.Query().Get("since"); raw != "" {
		window, err := time.ParseDuration(raw)
		if err != nil || window <= 0 {
			writeJSONError(w, http.StatusBadRequest, "since must be a positive duration such as 24h")
			return
		}
		if a.attempts == nil {
			writeJSONError(w, http.StatusServiceUnavailable, "attempt log is disabled")
			return
		}
		totals, err := a.attempts.ProviderTotals(r.Context(), time.Now().Add(-window))
		if err != nil {
			a.logger.Error().Err(err).Msg("provider totals query failed")
			writeJSONError(w, http.StatusInternalServerError, "failed to read attempt log")
			return
		}
		resp["history"] = totals
	}

	writeJSON(w, http.StatusOK, resp)
}

// HandleAttempts pages through the attempt log, newest first.
func (a *API) HandleAttempts(w http.ResponseWriter, r *http.Request) {
	if a.attempts == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "attempt log is disabled")
		return
	}

	q := r.URL.Query()
	limit, err := queryInt(q.Get("limit"), 100)
	if err != nil || limit < 1 || limit > 1000 {
		writeJSONError(w, http.StatusBadRequest, "limit must be between 1 and 1000")
		return
	}
	offset, err := queryInt(q.Get("offset"), 0)
	if err != nil || offset < 0 {
		writeJSONError(w, http.StatusBadRequest, "offset must be non-negative")
		return
	}

	rows, err := a.attempts.ListAttempts(r.Context(), q.Get("provider"), limit, offset)
	if err != nil {
		a.logger.Error().Err(err).Msg("list attempts failed")
		writeJSONError(w, http.StatusInternalServerError, "failed to read attempt log")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"attempts": rows,
		"limit":    limit,
		"offset":   offset,
	})
}

func queryInt(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

// statusFor maps router failures onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, router.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, router.ErrUnknownProvider):
		return http.StatusNotFound
	case errors.Is(err, router.ErrNoProvidersAvailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, router.ErrAllProvidersFailed):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// writeRouterError writes a *router.Error in its wire shape. Other errors
// (caller cancellation) get the generic error body.
func writeRouterError(w http.ResponseWriter, err error) {
	var rerr *router.Error
	if errors.As(err, &rerr) {
		writeJSON(w, statusFor(err), rerr)
		return
	}
	writeJSONError(w, statusFor(err), err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeJSONError writes a JSON error response with the given status code and message.
func writeJSONError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]interface{}{
		"error": map[string]interface{}{
			"message": message,
			"type":    "server_error",
		},
	})
}
