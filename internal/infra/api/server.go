package api

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"booking-scraper-service/internal/domain"
	"booking-scraper-service/internal/domain/model"
	"booking-scraper-service/internal/domain/ports/repository"
	"booking-scraper-service/internal/infra/logging"
	"booking-scraper-service/internal/infra/metrics"
	"booking-scraper-service/internal/infra/redis"
	"booking-scraper-service/internal/usecase"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

const maxBodyBytes = 16 << 10

// Throttle caps submissions per requester. A zero Limit disables it.
type Throttle struct {
	Limiter repository.RateLimiter
	Limit   int
	Window  time.Duration
}

// Server exposes the lookup use case over HTTP.
type Server struct {
	uc             usecase.ScrapeUseCase
	throttle       Throttle
	requestTimeout time.Duration
	log            *zerolog.Logger
}

func NewServer(uc usecase.ScrapeUseCase, throttle Throttle, requestTimeout time.Duration, logger *zerolog.Logger) *Server {
	if requestTimeout <= 0 {
		requestTimeout = 10 * time.Second
	}
	return &Server{
		uc:             uc,
		throttle:       throttle,
		requestTimeout: requestTimeout,
		log:            logging.Component(logger, "http"),
	}
}

// Routes builds the router: the two lookup routes plus health and metrics.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(TraceID(), RequestLog(s.log), Recover(s.log))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(Timeout(s.requestTimeout))
		r.Post("/scrape", s.handleSubmit)
		r.Get("/scrape/{jobId}", s.handlePoll)
	})
	return r
}

type submitRequest struct {
	Provider    string `json:"provider"`
	Locator     string `json:"locator"`
	LastName    string `json:"lastName"`
	Origin      string `json:"origin,omitempty"`
	RequesterID string `json:"requesterId,omitempty"`
}

type submitResponse struct {
	JobID  string               `json:"jobId,omitempty"`
	Status model.JobState       `json:"status"`
	Result *model.BookingRecord `json:"result,omitempty"`
	Source string               `json:"source,omitempty"`
}

type pollResponse struct {
	JobID         string               `json:"jobId"`
	Status        model.JobState       `json:"status"`
	Result        *model.BookingRecord `json:"result,omitempty"`
	FailureReason string               `json:"failureReason,omitempty"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var body submitRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	requester := requesterID(r, body.RequesterID)
	ctx := logging.WithRequesterID(r.Context(), requester)

	if err := s.allow(r.WithContext(ctx), requester); err != nil {
		s.fail(w, r.WithContext(ctx), err)
		return
	}

	res, err := s.uc.Submit(ctx, model.LookupRequest{
		Provider:    model.Provider(body.Provider),
		Locator:     body.Locator,
		LastName:    body.LastName,
		Origin:      body.Origin,
		RequesterID: requester,
	})
	if err != nil {
		s.fail(w, r.WithContext(ctx), err)
		return
	}

	out := submitResponse{JobID: res.JobID, Status: res.Status, Result: res.Result, Source: res.Source}
	if res.Status == model.JobStateCompleted {
		writeJSON(w, http.StatusOK, out)
		return
	}
	writeJSON(w, http.StatusAccepted, out)
}

func (s *Server) handlePoll(w http.ResponseWriter, r *http.Request) {
	res, err := s.uc.Poll(r.Context(), chi.URLParam(r, "jobId"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pollResponse{
		JobID:         res.JobID,
		Status:        res.Status,
		Result:        res.Result,
		FailureReason: res.FailureReason,
	})
}

func (s *Server) allow(r *http.Request, requester string) error {
	t := s.throttle
	if t.Limiter == nil || t.Limit <= 0 {
		return nil
	}
	ok, err := t.Limiter.Allow(r.Context(), redis.SubmitKey(requester), t.Limit, t.Window)
	if err != nil {
		// Fail open: the limiter protects the portals, not correctness.
		logging.With(r.Context(), s.log).Warn().Err(err).Msg("rate limiter unavailable")
		return nil
	}
	if !ok {
		return domain.ErrRateLimited
	}
	return nil
}

// fail maps a domain error to its status. Only 5xx bodies are generic.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrProviderUnsupported):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "job not found")
	case errors.Is(err, domain.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "too many requests")
	default:
		logging.With(r.Context(), s.log).Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// requesterID prefers the body field, then the X-Requester-ID header, then the client address.
func requesterID(r *http.Request, fromBody string) string {
	if v := strings.TrimSpace(fromBody); v != "" {
		return v
	}
	if v := strings.TrimSpace(r.Header.Get("X-Requester-ID")); v != "" {
		return v
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
