// Package gateway exposes the faucet HTTP surface. It is a thin adapter over
// the faucet service: request parsing and response shaping live here, all
// admission and dispatch logic lives in the faucet package.
package gateway

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"faucetd/faucet"
)

// Server handles the faucet routes.
type Server struct {
	service *faucet.Service
	logger  *slog.Logger
}

// NewServer wires the faucet routes into a chi router.
func NewServer(service *faucet.Service, limiter *RateLimiter, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{service: service, logger: logger}

	r := chi.NewRouter()
	r.Use(s.logRequests)
	if limiter != nil {
		r.Use(limiter.Middleware)
	}
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/send/{chain}/{address}", s.handleSend)
	r.Get("/status/{address}", s.handleStatus)
	r.Get("/balance/{chain}", s.handleBalance)
	return r
}

// response is the wire shape shared by all faucet endpoints: code 0 for
// success, code 1 for rejection.
type response struct {
	Code      int    `json:"code"`
	Message   string `json:"message,omitempty"`
	Status    string `json:"status,omitempty"`
	TxHash    string `json:"tx_hash,omitempty"`
	Amount    string `json:"amount,omitempty"`
	Denom     string `json:"denom,omitempty"`
	Recipient string `json:"recipient,omitempty"`
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	chain := chi.URLParam(r, "chain")
	address := chi.URLParam(r, "address")
	ip := ClientIP(r)

	err := s.service.RequestFunds(r.Context(), chain, address, ip)
	var limited *faucet.RateLimitedError
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, response{Code: 0, Message: "Address enqueued for funding."})
	case errors.Is(err, faucet.ErrUnsupportedChain):
		writeJSON(w, http.StatusNotFound, response{Code: 1, Message: "Chain '" + chain + "' is not supported."})
	case errors.Is(err, faucet.ErrInvalidAddress):
		writeJSON(w, http.StatusOK, response{Code: 1, Message: "Address '" + address + "' is not supported.", Recipient: address})
	case errors.As(err, &limited):
		writeJSON(w, http.StatusOK, response{Code: 1, Message: limited.Error()})
	case errors.Is(err, faucet.ErrAlreadyPaid):
		writeJSON(w, http.StatusBadRequest, response{Code: 1, Message: "Address has already received funds."})
	default:
		s.logger.Error("send request failed", "chain", chain, "address", address, "error", err)
		writeJSON(w, http.StatusInternalServerError, response{Code: 1, Message: "Internal error."})
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	view, err := s.service.Status(r.Context(), address)
	if err != nil {
		s.logger.Error("status request failed", "address", address, "error", err)
		writeJSON(w, http.StatusInternalServerError, response{Code: 1, Message: "Internal error."})
		return
	}
	status := string(view.Status)
	if view.Status == faucet.StatusUnknown {
		status = "not found"
	}
	writeJSON(w, http.StatusOK, response{Code: 0, Status: status, TxHash: view.TxHash})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	chain := chi.URLParam(r, "chain")
	balance, err := s.service.Balance(r.Context(), chain)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, response{Code: 0, Amount: balance.Amount, Denom: balance.Denom})
	case errors.Is(err, faucet.ErrUnsupportedChain):
		writeJSON(w, http.StatusNotFound, response{Code: 1, Message: "Chain '" + chain + "' is not supported."})
	default:
		s.logger.Error("balance lookup failed", "chain", chain, "error", err)
		writeJSON(w, http.StatusBadGateway, response{Code: 1, Message: "Balance lookup failed."})
	}
}

// logRequests emits one structured line per request with a request id.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		s.logger.Info("request",
			"request_id", uuid.NewString(),
			"method", r.Method,
			"path", r.URL.Path,
			"ip", ClientIP(r),
			"status", recorder.status,
			"duration", time.Since(start),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func writeJSON(w http.ResponseWriter, status int, body response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
