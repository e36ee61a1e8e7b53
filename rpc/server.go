package rpc

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"xlend/native/lending"
	"xlend/observability"
)

const requestBodyLimit = 1 << 20 // 1 MiB

// Server exposes the lending engine over HTTP. Public routes act on behalf
// of the address declared in the request body; /v1/system routes are
// reserved for the settlement authority and additionally require the bearer
// token resolved at startup.
type Server struct {
	engine         *lending.Engine
	logger         *slog.Logger
	metrics        *observability.LendingMetrics
	authority      [20]byte
	authorityToken string
}

// NewServer constructs the RPC surface. An empty authorityToken disables
// every system route.
func NewServer(engine *lending.Engine, authority [20]byte, authorityToken string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		engine:         engine,
		logger:         logger,
		metrics:        observability.Lending(),
		authority:      authority,
		authorityToken: strings.TrimSpace(authorityToken),
	}
}

// Router builds the chi routing tree.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/v1", func(r chi.Router) {
		r.Post("/tiers", s.handleInitTier)
		r.Post("/tiers/edit", s.handleEditTier)
		r.Post("/tiers/close", s.handleCloseTier)

		r.Post("/lend-offers", s.handleCreateLendOffer)
		r.Post("/lend-offers/edit", s.handleEditLendOffer)
		r.Post("/lend-offers/cancel", s.handleCancelLendOffer)

		r.Post("/loans", s.handleCreateLoanOffer)
		r.Post("/loans/repay", s.handleRepayLoanOffer)
		r.Post("/loans/collateral/deposit", s.handleDepositCollateral)
		r.Post("/loans/collateral/withdraw", s.handleWithdrawCollateral)

		r.Route("/system", func(r chi.Router) {
			r.Use(s.requireAuthorityToken)
			r.Post("/lend-offers/cancel", s.handleSystemCancelLendOffer)
			r.Post("/loans/fund", s.handleSystemUpdateLoanOffer)
			r.Post("/loans/close", s.handleSystemRepayLoanOffer)
			r.Post("/loans/collateral/release", s.handleSystemTransferCollateral)
			r.Post("/loans/liquidate", s.handleStartLiquidate)
			r.Post("/loans/liquidate/settle", s.handleFinishLiquidate)
		})
	})
	return r
}

// requireAuthorityToken gates the system routes behind the bearer token the
// daemon resolved from the environment at startup. Token comparison happens
// before any body is read.
func (s *Server) requireAuthorityToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.authorityToken == "" {
			s.writeError(w, r, http.StatusForbidden, errors.New("system operations disabled: no authority token configured"))
			return
		}
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) != s.authorityToken {
			s.writeError(w, r, http.StatusUnauthorized, errors.New("invalid authority token"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, requestBodyLimit))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	s.logger.Warn("request failed",
		slog.String("path", r.URL.Path),
		slog.Int("status", status),
		slog.String("error", err.Error()),
	)
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

// respond translates an engine result into an HTTP response and records the
// operation metric.
func (s *Server) respond(w http.ResponseWriter, r *http.Request, operation string, started time.Time, payload interface{}, err error) {
	s.metrics.Observe(operation, time.Since(started), err, reasonFor(err))
	if err != nil {
		s.writeError(w, r, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, payload)
}

// statusFor maps engine sentinel errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, lending.ErrNotSettlementAuthority),
		errors.Is(err, lending.ErrNotTierOwner):
		return http.StatusForbidden
	case errors.Is(err, lending.ErrTierNotInitialized),
		errors.Is(err, lending.ErrLendOfferNotFound),
		errors.Is(err, lending.ErrLoanOfferNotFound):
		return http.StatusNotFound
	case errors.Is(err, lending.ErrTierAlreadyExists),
		errors.Is(err, lending.ErrTierReferenced),
		errors.Is(err, lending.ErrLendOfferNotAvailable),
		errors.Is(err, lending.ErrInvalidStateTransition),
		errors.Is(err, lending.ErrLoanOfferExpired),
		errors.Is(err, lending.ErrWithdrawAlreadyPending),
		errors.Is(err, lending.ErrNoWithdrawRequested),
		errors.Is(err, lending.ErrHealthRatioStillSufficient):
		return http.StatusConflict
	case errors.Is(err, lending.ErrInsufficientLenderBalance),
		errors.Is(err, lending.ErrInsufficientBorrowerBalance),
		errors.Is(err, lending.ErrInsufficientLiquidity),
		errors.Is(err, lending.ErrInsufficientCollateral),
		errors.Is(err, lending.ErrWithdrawalWouldUnderCollateralize):
		return http.StatusUnprocessableEntity
	case errors.Is(err, lending.ErrStalePriceFeed),
		errors.Is(err, lending.ErrPriceFeedFailed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadRequest
	}
}

// reasonFor yields a short stable label for error metrics.
func reasonFor(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, lending.ErrStalePriceFeed):
		return "stale_price"
	case errors.Is(err, lending.ErrPriceFeedFailed):
		return "oracle_unavailable"
	case errors.Is(err, lending.ErrInsufficientCollateral),
		errors.Is(err, lending.ErrWithdrawalWouldUnderCollateralize):
		return "health_ratio"
	case errors.Is(err, lending.ErrInvalidStateTransition):
		return "state"
	case errors.Is(err, lending.ErrNotSettlementAuthority),
		errors.Is(err, lending.ErrNotTierOwner):
		return "authorization"
	default:
		return "validation"
	}
}
