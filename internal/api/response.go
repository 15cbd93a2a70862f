package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"yellowcore-go/internal/auth"
	"yellowcore-go/internal/models"
)

var errMalformed = errors.New("malformed request")

type payload map[string]any

func (s *APIServer) writeJSON(w http.ResponseWriter, code int, body payload) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("Failed to write response", zap.Int("status", code), zap.Error(err))
	}
}

func (s *APIServer) writeOK(w http.ResponseWriter, body payload) {
	if body == nil {
		body = payload{}
	}
	body["status"] = "ok"
	s.writeJSON(w, http.StatusOK, body)
}

func (s *APIServer) writeError(w http.ResponseWriter, code int, message string) {
	s.writeJSON(w, code, payload{"status": "error", "message": message})
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errMalformed),
		errors.Is(err, models.ErrInvalidAmount),
		errors.Is(err, models.ErrInvalidQuantity),
		errors.Is(err, models.ErrInvalidRate),
		errors.Is(err, models.ErrSameAccount),
		errors.Is(err, models.ErrUnsupportedCurrency),
		errors.Is(err, auth.ErrInvalidUsername):
		return http.StatusBadRequest
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, models.ErrNotOwner):
		return http.StatusForbidden
	case errors.Is(err, models.ErrAccountNotFound), errors.Is(err, models.ErrUnknownSymbol):
		return http.StatusNotFound
	case errors.Is(err, models.ErrInsufficientFunds),
		errors.Is(err, models.ErrInsufficientShares),
		errors.Is(err, models.ErrNonZeroBalance),
		errors.Is(err, auth.ErrUsernameTaken):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func (s *APIServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		s.logger.Error("Request failed", zap.String("path", r.URL.Path), zap.Error(err))
		s.writeError(w, code, "internal error")
		return
	}
	s.logger.Warn("Request rejected", zap.String("path", r.URL.Path), zap.Int("status", code), zap.Error(err))
	s.writeError(w, code, err.Error())
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<16)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errMalformed, err)
	}
	return nil
}
