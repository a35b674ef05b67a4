// Package http provides the forecast HTTP API and its HTML partial.
//
// This file implements utilities for parsing and validating request data.

package http

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"fincast/internal/forecast"
)

// ParseHorizon reads the horizon query parameter, falling back to def when
// it is absent. The result is always a supported horizon.
func ParseHorizon(query url.Values, def int) (int, error) {
	v := strings.TrimSpace(query.Get("horizon"))
	if v == "" {
		return def, forecast.ValidateHorizon(def)
	}
	h, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", forecast.ErrInvalidHorizon, v)
	}
	if err := forecast.ValidateHorizon(h); err != nil {
		return 0, err
	}
	return h, nil
}

// WantsHTML reports whether the caller asked for an HTML fragment, either
// through HTMX or an explicit Accept header.
func WantsHTML(header http.Header) bool {
	if header.Get("HX-Request") == "true" {
		return true
	}
	accept := header.Get("Accept")
	return strings.Contains(accept, "text/html") && !strings.Contains(accept, "application/json")
}
