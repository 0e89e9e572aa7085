// Package trade provides the HTTP handlers for buying, selling and querying
// allocations against the shared matching engine.
//
// Volumes and prices are whole units carried as uint64.
package trade

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/vmbid/matching-engine/internal/engine"
	"github.com/vmbid/matching-engine/internal/events"
	"github.com/vmbid/matching-engine/internal/metrics"
	"github.com/vmbid/matching-engine/internal/model"
	"github.com/vmbid/matching-engine/internal/store"
)

const (
	defaultUsernameMaxLen = 64
	defaultMaxVolume      = 1_000_000_000_000
	journalTimeout        = 5 * time.Second
)

// Service binds the engine to HTTP. The engine does its own locking, so the
// service holds no lock of its own.
type Service struct {
	engine         *engine.Engine
	store          store.Store
	publisher      events.Publisher // optional
	wsHub          *WSHub           // optional
	validate       *validator.Validate
	usernameMaxLen int
	maxVolume      uint64
}

// Option configures a Service.
type Option func(*Service)

// WithPublisher streams every fill to p after it is journaled.
func WithPublisher(p events.Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithUsernameMaxLen caps the length of a trimmed username.
func WithUsernameMaxLen(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.usernameMaxLen = n
		}
	}
}

// WithMaxVolume caps the volume of a single buy or sell request.
func WithMaxVolume(n uint64) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxVolume = n
		}
	}
}

// NewService creates a new trade service.
// Pass nil for hub if WebSocket broadcasting is not needed.
func NewService(eng *engine.Engine, st store.Store, hub *WSHub, opts ...Option) *Service {
	s := &Service{
		engine:         eng,
		store:          st,
		wsHub:          hub,
		validate:       validator.New(),
		usernameMaxLen: defaultUsernameMaxLen,
		maxVolume:      defaultMaxVolume,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.validate.RegisterValidation("order_volume", func(fl validator.FieldLevel) bool {
		return fl.Field().Uint() <= s.maxVolume
	})
	return s
}

// --- Request/Response types ---

// BuyRequest is the JSON body for POST /buy.
type BuyRequest struct {
	Username string `json:"username" validate:"required"`
	Volume   uint64 `json:"volume" validate:"order_volume"`
	Price    uint64 `json:"price"`
}

// BuyResponse is returned from POST /buy.
type BuyResponse struct {
	Allocated uint64 `json:"allocated"`
	Queued    uint64 `json:"queued"`
}

// SellRequest is the JSON body for POST /sell.
type SellRequest struct {
	Volume uint64 `json:"volume" validate:"order_volume"`
}

// SellResponse is returned from POST /sell.
type SellResponse struct {
	Allocated uint64 `json:"allocated"`
}

// AllocationResponse is returned from GET /allocation.
type AllocationResponse struct {
	Username  string `json:"username"`
	Allocated uint64 `json:"allocated"`
}

// --- HTTP Handlers ---

// Buy handles POST /buy
func (s *Service) Buy(w http.ResponseWriter, r *http.Request) {
	var req BuyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if err := s.validate.Struct(req); err != nil {
		s.writeValidationError(w, err)
		return
	}
	if err := s.checkLength(req.Username); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	start := time.Now()
	res, err := s.engine.Buy(req.Username, req.Volume, req.Price)
	metrics.OrderLatency.WithLabelValues("buy").Observe(time.Since(start).Seconds())
	if err != nil {
		writeEngineError(w, err)
		return
	}

	metrics.OrdersTotal.WithLabelValues("buy").Inc()
	metrics.VolumeAllocated.WithLabelValues("buy").Add(float64(res.Allocated))
	metrics.VolumeQueued.Add(float64(res.Queued))
	s.updateGauges()

	s.record(r.Context(), res.Fills)
	if s.wsHub != nil && res.Bid != nil {
		s.wsHub.Broadcast(bidMessage(*res.Bid))
	}

	slog.Info("buy executed",
		"username", req.Username,
		"volume", req.Volume,
		"price", req.Price,
		"allocated", res.Allocated,
		"queued", res.Queued,
	)

	writeJSON(w, http.StatusOK, BuyResponse{Allocated: res.Allocated, Queued: res.Queued})
}

// Sell handles POST /sell
func (s *Service) Sell(w http.ResponseWriter, r *http.Request) {
	var req SellRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.writeValidationError(w, err)
		return
	}

	start := time.Now()
	res := s.engine.Sell(req.Volume)
	metrics.OrderLatency.WithLabelValues("sell").Observe(time.Since(start).Seconds())

	metrics.OrdersTotal.WithLabelValues("sell").Inc()
	metrics.VolumeAllocated.WithLabelValues("sell").Add(float64(res.Allocated))
	s.updateGauges()

	s.record(r.Context(), res.Fills)

	slog.Info("sell executed",
		"volume", req.Volume,
		"allocated", res.Allocated,
		"unmatched", res.Unmatched,
		"fills", len(res.Fills),
	)

	writeJSON(w, http.StatusOK, SellResponse{Allocated: res.Allocated})
}

// GetAllocation handles GET /allocation?username=
func (s *Service) GetAllocation(w http.ResponseWriter, r *http.Request) {
	username := strings.TrimSpace(r.URL.Query().Get("username"))
	if err := s.checkLength(username); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	total, err := s.engine.Allocation(username)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, AllocationResponse{Username: username, Allocated: total})
}

// GetFills handles GET /fills?username=
func (s *Service) GetFills(w http.ResponseWriter, r *http.Request) {
	username := strings.TrimSpace(r.URL.Query().Get("username"))
	if username == "" {
		writeEngineError(w, engine.ErrMissingUsername)
		return
	}

	fills, err := s.store.GetFillsByUser(r.Context(), username)
	if err != nil {
		slog.Error("failed to load fills", "username", username, "err", err)
		writeError(w, "failed to load fills", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, fills)
}

// checkLength rejects usernames longer than the configured maximum. Blank
// usernames pass through so the engine can report them.
func (s *Service) checkLength(username string) error {
	if username == "" {
		return nil
	}
	if err := s.validate.Var(username, fmt.Sprintf("max=%d", s.usernameMaxLen)); err != nil {
		return fmt.Errorf("username must be at most %d characters", s.usernameMaxLen)
	}
	return nil
}

// record journals fills and pushes them to the publisher and the live feed.
// Failures are logged and counted; the match has already happened.
func (s *Service) record(ctx context.Context, fills []model.Fill) {
	if len(fills) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), journalTimeout)
	defer cancel()

	if err := s.store.InsertFills(ctx, fills); err != nil {
		metrics.JournalErrors.WithLabelValues("store").Inc()
		slog.Error("failed to journal fills", "count", len(fills), "err", err)
	}
	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, fills); err != nil {
			metrics.JournalErrors.WithLabelValues("publisher").Inc()
			slog.Error("failed to publish fills", "count", len(fills), "err", err)
		}
	}
	if s.wsHub != nil {
		for _, f := range fills {
			s.wsHub.Broadcast(fillMessage(f))
		}
	}
}

func (s *Service) updateGauges() {
	metrics.SupplyAvailable.Set(float64(s.engine.Supply()))
	metrics.OpenBidVolume.Set(float64(s.engine.OpenBidVolume()))
}

// writeValidationError reports the first failed field of a request.
func (s *Service) writeValidationError(w http.ResponseWriter, err error) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	switch verrs[0].Field() {
	case "Username":
		writeEngineError(w, engine.ErrMissingUsername)
	case "Volume":
		writeError(w, fmt.Sprintf("volume must be at most %d", s.maxVolume), http.StatusBadRequest)
	default:
		writeError(w, "invalid request body", http.StatusBadRequest)
	}
}

// writeEngineError maps engine errors onto HTTP statuses.
func writeEngineError(w http.ResponseWriter, err error) {
	var nf *engine.NotFoundError
	switch {
	case errors.Is(err, engine.ErrMissingUsername):
		writeError(w, "please provide a username", http.StatusBadRequest)
	case errors.As(err, &nf):
		writeError(w, fmt.Sprintf("username %s not found", nf.Username), http.StatusNotFound)
	default:
		slog.Error("engine error", "err", err)
		writeError(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
