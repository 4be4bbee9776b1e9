// Package httpapi exposes the lottery's administrative and client-facing
// REST surface.
package httpapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/time/rate"

	"github.com/hastrology/lottery-service/internal/app/domain/lottery"
	"github.com/hastrology/lottery-service/internal/app/metrics"
	"github.com/hastrology/lottery-service/internal/app/services/draw"
	"github.com/hastrology/lottery-service/internal/app/storage"
	"github.com/hastrology/lottery-service/internal/chain"
	"github.com/hastrology/lottery-service/internal/retry"
	"github.com/hastrology/lottery-service/pkg/logger"
)

const defaultListLimit = 50

// DrawService is the orchestrator surface the API exposes.
type DrawService interface {
	ExecuteDraw(ctx context.Context, trigger lottery.TriggerSource) (lottery.DrawAttempt, error)
	RoundStatus(ctx context.Context) (draw.RoundStatus, error)
	InFlight() bool
}

// ResultResolver answers participant result queries.
type ResultResolver interface {
	Resolve(ctx context.Context, participant chain.Address) (lottery.Resolution, error)
	AwaitRollover(ctx context.Context, fromRound uint64) (uint64, error)
}

// ConfigAdmin submits authority configuration updates.
type ConfigAdmin interface {
	SubmitUpdateConfig(ctx context.Context, upd chain.ConfigUpdate) (string, error)
	Confirm(ctx context.Context, signature string) error
}

// Config tunes the HTTP surface.
type Config struct {
	// AdminSecret gates the draw and config endpoints. Empty disables them.
	AdminSecret string
	// TriggerRate limits the client-facing trigger endpoint, requests per
	// second with the given burst.
	TriggerRate  float64
	TriggerBurst int
	// DrawTimeout bounds background draws started from the API.
	DrawTimeout time.Duration
}

type handler struct {
	draws     DrawService
	resolver  ResultResolver
	admin     ConfigAdmin
	rounds    storage.RoundStore
	attempts  storage.AttemptStore
	incidents storage.IncidentStore
	log       *logger.Logger

	secret      string
	limiter     *rate.Limiter
	drawTimeout time.Duration
}

// NewHandler builds the router. resolver, admin and the stores may be nil;
// their endpoints then answer 404 or 503.
func NewHandler(draws DrawService, resolver ResultResolver, admin ConfigAdmin,
	rounds storage.RoundStore, attempts storage.AttemptStore, incidents storage.IncidentStore,
	log *logger.Logger, cfg Config) http.Handler {

	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	if cfg.TriggerRate <= 0 {
		cfg.TriggerRate = 0.2 // one trigger every five seconds
	}
	if cfg.TriggerBurst <= 0 {
		cfg.TriggerBurst = 1
	}
	if cfg.DrawTimeout <= 0 {
		cfg.DrawTimeout = 5 * time.Minute
	}

	h := &handler{
		draws:       draws,
		resolver:    resolver,
		admin:       admin,
		rounds:      rounds,
		attempts:    attempts,
		incidents:   incidents,
		log:         log,
		secret:      cfg.AdminSecret,
		limiter:     rate.NewLimiter(rate.Limit(cfg.TriggerRate), cfg.TriggerBurst),
		drawTimeout: cfg.DrawTimeout,
	}

	r := mux.NewRouter()
	r.HandleFunc("/lottery/status", h.status).Methods(http.MethodGet)
	r.HandleFunc("/lottery/draw", h.adminDraw).Methods(http.MethodPost)
	r.HandleFunc("/lottery/trigger-draw", h.triggerDraw).Methods(http.MethodPost)
	r.HandleFunc("/lottery/result/{address}", h.result).Methods(http.MethodGet)
	r.HandleFunc("/lottery/result/{address}/check", h.checkResult).Methods(http.MethodPost)
	r.HandleFunc("/lottery/rounds", h.listRounds).Methods(http.MethodGet)
	r.HandleFunc("/lottery/attempts", h.listAttempts).Methods(http.MethodGet)
	r.HandleFunc("/lottery/incidents", h.listIncidents).Methods(http.MethodGet)
	r.HandleFunc("/lottery/config", h.updateConfig).Methods(http.MethodPost)
	r.HandleFunc("/healthz", h.healthz).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	return r
}

func (h *handler) status(w http.ResponseWriter, r *http.Request) {
	status, err := h.draws.RoundStatus(r.Context())
	if err != nil {
		h.log.WithError(err).Warn("round status")
		writeMessage(w, http.StatusServiceUnavailable, "lottery status is unavailable right now, try again shortly")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// adminDraw starts a draw with the shared secret. The draw runs in the
// background; callers poll /lottery/status for the outcome.
func (h *handler) adminDraw(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Secret string `json:"secret"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !h.authorized(payload.Secret) {
		writeMessage(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	h.startDraw(lottery.TriggerManual)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// triggerDraw is the client-facing entry point. No secret; rate limited.
func (h *handler) triggerDraw(w http.ResponseWriter, r *http.Request) {
	if !h.limiter.Allow() {
		writeMessage(w, http.StatusTooManyRequests, "draw was triggered recently, check back in a moment")
		return
	}
	h.startDraw(lottery.TriggerClient)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (h *handler) startDraw(trigger lottery.TriggerSource) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), h.drawTimeout)
		defer cancel()
		if _, err := h.draws.ExecuteDraw(ctx, trigger); err != nil {
			h.log.WithError(err).WithField("trigger", string(trigger)).Warn("background draw")
		}
	}()
}

func (h *handler) result(w http.ResponseWriter, r *http.Request) {
	if h.resolver == nil {
		writeMessage(w, http.StatusNotFound, "not found")
		return
	}
	participant, err := chain.ParseAddress(mux.Vars(r)["address"])
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid participant address")
		return
	}
	res, err := h.resolver.Resolve(r.Context(), participant)
	if err != nil {
		h.log.WithError(err).WithField("participant", participant.Short()).Warn("resolve result")
		writeMessage(w, http.StatusServiceUnavailable, "could not check your result right now, try again shortly")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// checkResult is the manual "check my result" action: it kicks the draw
// lifecycle, waits for the round to roll over, then resolves.
func (h *handler) checkResult(w http.ResponseWriter, r *http.Request) {
	if h.resolver == nil {
		writeMessage(w, http.StatusNotFound, "not found")
		return
	}
	participant, err := chain.ParseAddress(mux.Vars(r)["address"])
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid participant address")
		return
	}

	status, err := h.draws.RoundStatus(r.Context())
	if err != nil {
		writeMessage(w, http.StatusServiceUnavailable, "could not check your result right now, try again shortly")
		return
	}

	if status.Phase == lottery.PhaseWaiting {
		// Nothing to draw yet; answer from current state.
		h.result(w, r)
		return
	}

	h.startDraw(lottery.TriggerClient)

	if _, err := h.resolver.AwaitRollover(r.Context(), status.RoundID); err != nil {
		if errors.Is(err, retry.ErrBudgetExhausted) {
			writeMessage(w, http.StatusAccepted, "the draw is taking longer than usual, check back in a minute")
			return
		}
		h.log.WithError(err).Warn("await rollover")
		writeMessage(w, http.StatusServiceUnavailable, "could not check your result right now, try again shortly")
		return
	}

	res, err := h.resolver.Resolve(r.Context(), participant)
	if err != nil {
		h.log.WithError(err).WithField("participant", participant.Short()).Warn("resolve result")
		writeMessage(w, http.StatusServiceUnavailable, "could not check your result right now, try again shortly")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handler) listRounds(w http.ResponseWriter, r *http.Request) {
	if h.rounds == nil {
		writeMessage(w, http.StatusNotFound, "not found")
		return
	}
	rounds, err := h.rounds.ListRounds(r.Context(), listLimit(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, rounds)
}

func (h *handler) listAttempts(w http.ResponseWriter, r *http.Request) {
	if h.attempts == nil {
		writeMessage(w, http.StatusNotFound, "not found")
		return
	}
	attempts, err := h.attempts.ListAttempts(r.Context(), listLimit(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, attempts)
}

func (h *handler) listIncidents(w http.ResponseWriter, r *http.Request) {
	if h.incidents == nil {
		writeMessage(w, http.StatusNotFound, "not found")
		return
	}
	incidents, err := h.incidents.ListIncidents(r.Context(), listLimit(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, incidents)
}

func (h *handler) updateConfig(w http.ResponseWriter, r *http.Request) {
	if h.admin == nil {
		writeMessage(w, http.StatusNotFound, "not found")
		return
	}
	var payload struct {
		Secret         string  `json:"secret"`
		TicketPrice    *uint64 `json:"ticket_price_lamports,omitempty"`
		PlatformFeeBps *uint16 `json:"platform_fee_bps,omitempty"`
		PlatformWallet *string `json:"platform_wallet,omitempty"`
		EndTimestamp   *int64  `json:"end_timestamp,omitempty"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !h.authorized(payload.Secret) {
		writeMessage(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	upd := chain.ConfigUpdate{
		TicketPrice:    payload.TicketPrice,
		PlatformFeeBps: payload.PlatformFeeBps,
		EndTimestamp:   payload.EndTimestamp,
	}
	if payload.PlatformWallet != nil {
		wallet, err := chain.ParseAddress(*payload.PlatformWallet)
		if err != nil {
			writeMessage(w, http.StatusBadRequest, "invalid platform wallet address")
			return
		}
		upd.PlatformWallet = &wallet
	}
	if upd.TicketPrice == nil && upd.PlatformFeeBps == nil && upd.PlatformWallet == nil && upd.EndTimestamp == nil {
		writeMessage(w, http.StatusBadRequest, "no configuration fields provided")
		return
	}

	signature, err := h.admin.SubmitUpdateConfig(r.Context(), upd)
	if err != nil {
		h.log.WithError(err).Warn("update config")
		writeMessage(w, http.StatusBadGateway, "configuration update was rejected")
		return
	}
	if err := h.admin.Confirm(r.Context(), signature); err != nil {
		h.log.WithError(err).WithField("signature", signature).Warn("confirm config update")
		writeMessage(w, http.StatusBadGateway, "configuration update was not confirmed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"signature": signature})
}

func (h *handler) healthz(w http.ResponseWriter, r *http.Request) {
	body := map[string]interface{}{
		"status":         "ok",
		"draw_in_flight": h.draws.InFlight(),
	}
	if h.incidents != nil {
		if incidents, err := h.incidents.ListIncidents(r.Context(), 5); err == nil {
			body["recent_incidents"] = incidents
		}
	}
	writeJSON(w, http.StatusOK, body)
}

// authorized compares the presented secret in constant time. An empty
// configured secret disables the gated endpoints entirely.
func (h *handler) authorized(secret string) bool {
	if h.secret == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(secret), []byte(h.secret)) == 1
}

func listLimit(r *http.Request) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultListLimit
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return defaultListLimit
	}
	return limit
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"message": msg})
}
