package main

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"bridgelet/gateway/auth"
	"bridgelet/gateway/middleware"
	"bridgelet/native/ephemeral"
	"bridgelet/native/reserve"
)

const maxRequestBody = 1 << 20

// Server is the HTTP front-end for ephemeral escrow accounts.
type Server struct {
	engine        *ephemeral.Engine
	registry      *reserve.Registry
	authenticator *auth.Authenticator
	logger        *slog.Logger
	router        chi.Router
}

// NewServer wires the HTTP routes around the escrow engine. The observability
// and rate limiting layers are optional; passing nil disables them.
func NewServer(engine *ephemeral.Engine, registry *reserve.Registry, authenticator *auth.Authenticator, obs *middleware.Observability, limiter *middleware.RateLimiter, logger *slog.Logger) *Server {
	if engine == nil {
		panic("engine required")
	}
	if authenticator == nil {
		panic("authenticator required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		engine:        engine,
		registry:      registry,
		authenticator: authenticator,
		logger:        logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if obs != nil {
		r.Use(obs.Middleware("accounts"))
		r.Method(http.MethodGet, "/metrics", obs.MetricsHandler())
	}
	limit := func(key string) func(http.Handler) http.Handler {
		if limiter == nil {
			return func(next http.Handler) http.Handler { return next }
		}
		return limiter.Middleware(key)
	}

	r.Get("/healthz", s.handleHealthz)
	r.Get("/reserve/config", s.handleReserveConfigGet)
	r.With(limit("reserve")).Post("/reserve/config", s.authenticated(s.handleReserveConfigSet))
	r.Route("/accounts/{id}", func(r chi.Router) {
		r.Get("/", s.handleAccountGet)
		r.Get("/reserve", s.handleReserveGet)
		r.With(limit("initialize")).Post("/initialize", s.authenticated(s.handleInitialize))
		r.With(limit("payments")).Post("/payments", s.authenticated(s.handlePayment))
		r.With(limit("sweep")).Post("/sweep", s.authenticated(s.handleSweep))
		r.With(limit("sweep")).Post("/expire", s.authenticated(s.handleExpire))
		r.With(limit("reserve")).Post("/reserve/reclaim", s.authenticated(s.handleReserveReclaim))
		r.With(limit("reserve")).Post("/reserve/credit", s.authenticated(s.handleReserveCredit))
	})
	s.router = r
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type authedHandler func(w http.ResponseWriter, r *http.Request, body []byte, principal *auth.Principal)

// authenticated reads and bounds the body, then verifies the HMAC headers
// before dispatching.
func (s *Server) authenticated(next authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := readRequestBody(r)
		if err != nil {
			s.writeError(w, r, http.StatusBadRequest, err)
			return
		}
		principal, err := s.authenticator.Authenticate(r, body)
		if err != nil {
			s.logger.Warn("authentication failed",
				slog.String("requestId", middleware.RequestIDFromContext(r.Context())),
				slog.String("path", r.URL.Path),
				slog.String("error", err.Error()),
			)
			s.writeError(w, r, http.StatusUnauthorized, err)
			return
		}
		next(w, r, body, principal)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type initializeRequest struct {
	Creator      string `json:"creator"`
	ExpiryLedger uint64 `json:"expiryLedger"`
	Recovery     string `json:"recovery"`
}

func (s *Server) handleInitialize(w http.ResponseWriter, r *http.Request, body []byte, principal *auth.Principal) {
	id, err := accountID(r)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	var req initializeRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("invalid JSON payload: %w", err))
		return
	}
	creator, err := parseAddress(req.Creator)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("invalid creator: %w", err))
		return
	}
	recovery, err := parseAddress(req.Recovery)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("invalid recovery: %w", err))
		return
	}
	if err := s.engine.Initialize(id, creator, req.ExpiryLedger, recovery); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	s.logger.Info("account initialized",
		slog.String("requestId", middleware.RequestIDFromContext(r.Context())),
		slog.String("account", hex.EncodeToString(id[:])),
		slog.String("apiKey", principal.APIKey),
	)
	s.writeJSON(w, http.StatusCreated, map[string]any{
		"account": hex.EncodeToString(id[:]),
		"status":  s.engine.Status(id).String(),
	})
}

type paymentRequest struct {
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

func (s *Server) handlePayment(w http.ResponseWriter, r *http.Request, body []byte, principal *auth.Principal) {
	id, err := accountID(r)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	var req paymentRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("invalid JSON payload: %w", err))
		return
	}
	asset, err := parseAddress(req.Asset)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("invalid asset: %w", err))
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	if err := s.engine.RecordPayment(id, asset, amount); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]any{
		"account": hex.EncodeToString(id[:]),
		"status":  s.engine.Status(id).String(),
	})
}

type sweepRequest struct {
	Destination string `json:"destination"`
	Signature   string `json:"signature,omitempty"`
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request, body []byte, principal *auth.Principal) {
	id, err := accountID(r)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	var req sweepRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("invalid JSON payload: %w", err))
		return
	}
	destination, err := parseAddress(req.Destination)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("invalid destination: %w", err))
		return
	}
	var signature []byte
	if req.Signature != "" {
		signature, err = hex.DecodeString(strings.TrimPrefix(req.Signature, "0x"))
		if err != nil {
			s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("invalid signature encoding: %w", err))
			return
		}
	}
	if err := s.engine.Sweep(id, destination, signature); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	s.logger.Info("account swept",
		slog.String("requestId", middleware.RequestIDFromContext(r.Context())),
		slog.String("account", hex.EncodeToString(id[:])),
		slog.String("destination", hex.EncodeToString(destination[:])),
		slog.String("apiKey", principal.APIKey),
	)
	s.writeJSON(w, http.StatusOK, s.reserveView(id))
}

func (s *Server) handleExpire(w http.ResponseWriter, r *http.Request, body []byte, principal *auth.Principal) {
	id, err := accountID(r)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	if err := s.engine.Expire(id); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	s.logger.Info("account expired",
		slog.String("requestId", middleware.RequestIDFromContext(r.Context())),
		slog.String("account", hex.EncodeToString(id[:])),
		slog.String("apiKey", principal.APIKey),
	)
	s.writeJSON(w, http.StatusOK, s.reserveView(id))
}

func (s *Server) handleReserveReclaim(w http.ResponseWriter, r *http.Request, body []byte, principal *auth.Principal) {
	id, err := accountID(r)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	reclaimed, err := s.engine.ReclaimReserve(id)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	view := s.reserveView(id)
	view["reclaimedNow"] = reclaimed.String()
	s.writeJSON(w, http.StatusOK, view)
}

type creditRequest struct {
	Amount string `json:"amount"`
}

func (s *Server) handleReserveCredit(w http.ResponseWriter, r *http.Request, body []byte, principal *auth.Principal) {
	id, err := accountID(r)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	var req creditRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("invalid JSON payload: %w", err))
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	if err := s.engine.CreditAvailableReserve(id, amount); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.reserveView(id))
}

func (s *Server) handleReserveConfigGet(w http.ResponseWriter, r *http.Request) {
	if s.registry == nil {
		s.writeError(w, r, http.StatusServiceUnavailable, reserve.ErrReserveNotSet)
		return
	}
	view := map[string]any{}
	if admin, ok := s.registry.Admin(); ok {
		view["admin"] = hex.EncodeToString(admin[:])
	}
	amount, ok := s.registry.BaseReserve()
	if !ok {
		s.writeError(w, r, http.StatusNotFound, reserve.ErrReserveNotSet)
		return
	}
	view["baseReserve"] = amount.String()
	s.writeJSON(w, http.StatusOK, view)
}

type reserveConfigRequest struct {
	Caller string `json:"caller"`
	Amount string `json:"amount"`
}

func (s *Server) handleReserveConfigSet(w http.ResponseWriter, r *http.Request, body []byte, principal *auth.Principal) {
	if s.registry == nil {
		s.writeError(w, r, http.StatusServiceUnavailable, reserve.ErrReserveNotSet)
		return
	}
	var req reserveConfigRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("invalid JSON payload: %w", err))
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("invalid caller: %w", err))
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	if err := s.registry.SetBaseReserve(caller, amount); err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, reserve.ErrNotInitialized):
			status = http.StatusConflict
		case errors.Is(err, reserve.ErrUnauthorized):
			status = http.StatusForbidden
		case errors.Is(err, reserve.ErrInvalidAmount), errors.Is(err, reserve.ErrAmountTooLarge):
			status = http.StatusBadRequest
		}
		s.writeError(w, r, status, err)
		return
	}
	s.logger.Info("base reserve updated",
		slog.String("requestId", middleware.RequestIDFromContext(r.Context())),
		slog.String("amount", amount.String()),
		slog.String("apiKey", principal.APIKey),
	)
	updated, _ := s.registry.BaseReserve()
	s.writeJSON(w, http.StatusOK, map[string]any{"baseReserve": updated.String()})
}

func (s *Server) handleAccountGet(w http.ResponseWriter, r *http.Request) {
	id, err := accountID(r)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	info, err := s.engine.Info(id)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	payments := make([]map[string]any, 0, len(info.Payments))
	for _, payment := range info.Payments {
		payments = append(payments, map[string]any{
			"asset":      hex.EncodeToString(payment.Asset[:]),
			"amount":     payment.Amount.String(),
			"receivedAt": payment.ReceivedAt,
		})
	}
	view := map[string]any{
		"account":         hex.EncodeToString(id[:]),
		"creator":         hex.EncodeToString(info.Creator[:]),
		"recovery":        hex.EncodeToString(info.RecoveryAddress[:]),
		"status":          info.Status.String(),
		"expiryLedger":    info.ExpiryLedger,
		"expired":         s.engine.IsExpired(id),
		"paymentReceived": info.PaymentReceived,
		"paymentCount":    info.PaymentCount,
		"payments":        payments,
	}
	if info.SweptTo != nil {
		view["sweptTo"] = hex.EncodeToString(info.SweptTo[:])
	}
	s.writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleReserveGet(w http.ResponseWriter, r *http.Request) {
	id, err := accountID(r)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	if _, err := s.engine.Info(id); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.reserveView(id))
}

func (s *Server) reserveView(id [20]byte) map[string]any {
	view := map[string]any{
		"account":    hex.EncodeToString(id[:]),
		"status":     s.engine.Status(id).String(),
		"remaining":  s.engine.ReserveRemaining(id).String(),
		"available":  s.engine.ReserveAvailable(id).String(),
		"reclaimed":  s.engine.IsReserveReclaimed(id),
		"eventCount": s.engine.ReserveReclaimEventCount(id),
	}
	if record := s.engine.LastReserveEvent(id); record != nil {
		view["lastEvent"] = map[string]any{
			"destination":      hex.EncodeToString(record.Destination[:]),
			"amount":           record.Amount.String(),
			"sweepId":          record.SweepID,
			"fullyReclaimed":   record.FullyReclaimed,
			"remainingReserve": record.RemainingReserve.String(),
		}
	}
	return view
}

// writeEngineError maps engine sentinels onto HTTP statuses.
func (s *Server) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ephemeral.ErrNotInitialized):
		status = http.StatusNotFound
	case errors.Is(err, ephemeral.ErrAlreadyInitialized),
		errors.Is(err, ephemeral.ErrDuplicateAsset),
		errors.Is(err, ephemeral.ErrAlreadySwept),
		errors.Is(err, ephemeral.ErrNoPaymentReceived),
		errors.Is(err, ephemeral.ErrNotExpired),
		errors.Is(err, ephemeral.ErrInvalidStatus):
		status = http.StatusConflict
	case errors.Is(err, ephemeral.ErrInvalidExpiry),
		errors.Is(err, ephemeral.ErrInvalidAmount):
		status = http.StatusBadRequest
	case errors.Is(err, ephemeral.ErrTooManyPayments):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, ephemeral.ErrAccountExpired):
		status = http.StatusGone
	case errors.Is(err, ephemeral.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, reserve.ErrReserveNotSet):
		status = http.StatusServiceUnavailable
	}
	s.writeError(w, r, status, err)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	s.writeJSON(w, status, map[string]any{
		"error":     err.Error(),
		"requestId": middleware.RequestIDFromContext(r.Context()),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func readRequestBody(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	limited := io.LimitReader(r.Body, maxRequestBody+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, err
	}
	if len(data) > maxRequestBody {
		return nil, fmt.Errorf("request body exceeds %d bytes", maxRequestBody)
	}
	return data, nil
}

func accountID(r *http.Request) ([20]byte, error) {
	return parseAddress(chi.URLParam(r, "id"))
}

func parseAddress(raw string) ([20]byte, error) {
	var out [20]byte
	cleaned := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	if cleaned == "" {
		return out, errors.New("address required")
	}
	decoded, err := hex.DecodeString(cleaned)
	if err != nil {
		return out, fmt.Errorf("invalid hex address: %w", err)
	}
	if len(decoded) != len(out) {
		return out, fmt.Errorf("address must be %d bytes", len(out))
	}
	copy(out[:], decoded)
	return out, nil
}

func parseAmount(raw string) (*big.Int, error) {
	cleaned := strings.TrimSpace(raw)
	if cleaned == "" {
		return nil, errors.New("amount required")
	}
	amount, ok := new(big.Int).SetString(cleaned, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}
	if amount.Sign() <= 0 {
		return nil, errors.New("amount must be positive")
	}
	return amount, nil
}
