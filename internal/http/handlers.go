package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"fincast/internal/amqp"
	"fincast/internal/forecast"
	"fincast/internal/log"
	"fincast/internal/services"
	"fincast/internal/storage"
)

// fetchRetryAfter is the Retry-After hint sent when the ledger is unreachable.
const fetchRetryAfter = 30

// handleHealth performs a basic liveness check.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewResponse().JSON(map[string]string{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	}).Write(w)
}

// handleReady checks templates and the backing ledger.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]string)

	if s.templates == nil {
		checks["templates"] = "failed: templates not loaded"
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["templates"] = "ok"
	}

	switch {
	case s.deps.Ready == nil:
		checks["backend"] = "not_checked"
	default:
		if err := s.deps.Ready(ctx); err != nil {
			checks["backend"] = fmt.Sprintf("failed: %v", err)
			status = "not_ready"
			httpStatus = http.StatusServiceUnavailable
		} else {
			checks["backend"] = "ok"
		}
	}

	NewResponse().Status(httpStatus).JSON(map[string]interface{}{
		"status": status,
		"checks": checks,
	}).Write(w)
}

// handleForecast returns the report for a horizon, reusing the cached
// dataset when one is available.
func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	horizon, err := ParseHorizon(r.URL.Query(), s.defaultHorizon)
	if err != nil {
		s.writeError(w, r, err, false)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
	defer cancel()
	report, err := s.deps.Forecasts.Recompute(ctx, horizon)
	if err != nil {
		s.writeError(w, r, err, false)
		return
	}
	NewResponse().
		Header("Cache-Control", "no-store").
		JSON(report).
		Write(w)
}

// handleRefresh forces a new ledger read. With a publisher configured the
// request is queued for the worker; otherwise it runs inline.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		UnprocessableEntityError("invalid form").Write(w)
		return
	}
	horizon, err := ParseHorizon(r.Form, s.defaultHorizon)
	if err != nil {
		s.writeError(w, r, err, false)
		return
	}
	logger := log.FromContext(r.Context())

	if s.deps.Publisher != nil {
		msg := amqp.NewRefreshRequestMessage(horizon)
		if err := s.deps.Publisher.PublishRefreshRequest(r.Context(), msg); err != nil {
			logger.ErrorContext(r.Context(), "Failed to queue forecast refresh",
				log.FieldHorizon, horizon,
				log.FieldError, err)
			ServiceUnavailableError("refresh queue unavailable", fetchRetryAfter).Write(w)
			return
		}
		logger.InfoContext(r.Context(), "Forecast refresh queued", log.FieldHorizon, horizon)
		NewResponse().
			Status(http.StatusAccepted).
			TriggerRefreshQueued(horizon).
			JSON(map[string]interface{}{
				"status":       "queued",
				"horizon":      horizon,
				"requested_at": msg.RequestedAt,
			}).
			Write(w)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
	defer cancel()

	var report *services.Report
	if s.deps.Snapshots != nil {
		report, _, err = s.deps.Snapshots.Process(ctx, horizon, time.Now().UTC())
	} else {
		report, err = s.deps.Forecasts.Refresh(ctx, horizon)
	}
	if err != nil {
		s.writeError(w, r, err, false)
		return
	}
	NewResponse().
		TriggerForecastUpdated(report.Horizon, report.Generation).
		JSON(report).
		Write(w)
}

// handleSnapshot returns the last persisted report for a horizon.
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	horizon, err := ParseHorizon(r.URL.Query(), s.defaultHorizon)
	if err != nil {
		s.writeError(w, r, err, false)
		return
	}
	if s.deps.Snapshots == nil {
		NotFoundError("snapshots are not stored by this backend").Write(w)
		return
	}
	report, err := s.deps.Snapshots.Latest(r.Context(), horizon)
	if err != nil {
		s.writeError(w, r, err, false)
		return
	}
	NewResponse().JSON(report).Write(w)
}

// handleForecastPartial renders the forecast as an HTML fragment.
func (s *Server) handleForecastPartial(w http.ResponseWriter, r *http.Request) {
	horizon, err := ParseHorizon(r.URL.Query(), s.defaultHorizon)
	if err != nil {
		s.writeError(w, r, err, true)
		return
	}
	if s.templates == nil {
		HTMLErrorResponse(http.StatusInternalServerError, "templates not loaded").Write(w)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
	defer cancel()
	report, err := s.deps.Forecasts.Recompute(ctx, horizon)
	if err != nil {
		s.writeError(w, r, err, true)
		return
	}

	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, "forecast.html", newForecastView(report)); err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Template execution error",
			log.FieldError, err,
			log.FieldHorizon, horizon,
			log.FieldOperation, log.OpRender)
		HTMLErrorResponse(http.StatusInternalServerError, "could not render forecast").Write(w)
		return
	}

	resp := NewResponse().BodyHTML(buf.String())
	if n := report.Warnings.DataErrors(); n > 0 {
		resp.TriggerWarningNotification(fmt.Sprintf("%d ledger records could not be used", n))
	}
	resp.Write(w)
}

// writeError maps service errors to status codes: invalid horizons are 422,
// ledger read failures 503 with Retry-After, missing snapshots 404.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error, html bool) {
	ctx := r.Context()
	logger := log.FromContext(ctx)

	var (
		status  int
		message string
	)
	switch {
	case errors.Is(err, forecast.ErrInvalidHorizon):
		status, message = http.StatusUnprocessableEntity, err.Error()
	case services.IsFetchError(err):
		logger.WarnContext(ctx, "Ledger unavailable", log.FieldError, err, log.FieldOperation, log.OpFetch)
		status, message = http.StatusServiceUnavailable, "ledger unavailable, retry later"
	case errors.Is(err, storage.ErrNoSnapshot):
		status, message = http.StatusNotFound, "no snapshot stored for this horizon yet"
	case errors.Is(err, context.DeadlineExceeded):
		logger.WarnContext(ctx, "Forecast timed out", log.FieldError, err)
		status, message = http.StatusServiceUnavailable, "forecast timed out, retry later"
	default:
		logger.ErrorContext(ctx, "Forecast request failed", log.FieldError, err)
		status, message = http.StatusInternalServerError, "internal error"
	}

	var resp *ResponseBuilder
	if html || WantsHTML(r.Header) {
		resp = HTMLErrorResponse(status, message)
	} else if status == http.StatusServiceUnavailable {
		resp = ServiceUnavailableError(message, fetchRetryAfter)
	} else {
		resp = ErrorResponse(status, message)
	}
	if status == http.StatusServiceUnavailable {
		resp.Header("Retry-After", fmt.Sprint(fetchRetryAfter))
	}
	resp.Write(w)
}
