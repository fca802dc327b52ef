// Package api holds the JSON envelope shared by the read API handlers.
package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/cloo-solutions/coverstats/internal/domain"
)

const contentTypeJSON = "application/json"

// SuccessResponse is the envelope for every 2xx body.
type SuccessResponse struct {
	Data interface{} `json:"data"`
}

// ErrorResponse is the envelope for every error body. Code carries the
// domain error code when one is known.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

var statusByCode = map[string]int{
	domain.ErrCodeValidation:       http.StatusBadRequest,
	domain.ErrCodeInvalidOperation: http.StatusBadRequest,
	domain.ErrCodeNotFound:         http.StatusNotFound,
	domain.ErrCodeConflict:         http.StatusConflict,
	domain.ErrCodeUnauthorized:     http.StatusUnauthorized,
}

// JSON writes data with the given status. The body is encoded before the
// header goes out, so an unencodable value turns into a plain 500.
func JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", contentTypeJSON)
	if data == nil {
		w.WriteHeader(status)
		return
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(data); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"Internal Server Error","code":"` + domain.ErrCodeInternalError + `"}` + "\n"))
		return
	}
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func Success(w http.ResponseWriter, status int, data interface{}) {
	JSON(w, status, SuccessResponse{Data: data})
}

// Error writes a bare error message without a domain code.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, ErrorResponse{Error: message})
}

// DomainErrorToHTTP maps domain errors, wrapped or not, to HTTP status codes.
func DomainErrorToHTTP(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var domainErr *domain.DomainError
	if !errors.As(err, &domainErr) {
		return http.StatusInternalServerError
	}
	if status, ok := statusByCode[domainErr.Code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// HandleError writes err using its domain code and message. Anything that
// maps to 500 is reported generically so storage or search details never
// reach the client.
func HandleError(w http.ResponseWriter, err error) {
	status := DomainErrorToHTTP(err)
	if status == http.StatusInternalServerError {
		JSON(w, status, ErrorResponse{
			Error: http.StatusText(status),
			Code:  domain.ErrCodeInternalError,
		})
		return
	}

	var domainErr *domain.DomainError
	errors.As(err, &domainErr)
	JSON(w, status, ErrorResponse{Error: domainErr.Message, Code: domainErr.Code})
}
