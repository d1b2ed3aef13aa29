// Package respond writes the uniform response envelope shared by the
// raw HTTP handlers and the middleware chain. Every JSON response is
// `{success, data?, error?, meta}` so clients parse one shape.
package respond

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// APIVersion is the version string stamped into every meta block.
const APIVersion = "v1"

// Pagination describes a page of a list response.
type Pagination struct {
	Page       int  `json:"page"`
	Limit      int  `json:"limit"`
	Total      int  `json:"total"`
	TotalPages int  `json:"totalPages"`
	HasNext    bool `json:"hasNext"`
	HasPrev    bool `json:"hasPrev"`
}

// NewPagination derives the pagination block from a page request and
// the total row count.
func NewPagination(page, limit, total int) *Pagination {
	totalPages := 0
	if limit > 0 {
		totalPages = (total + limit - 1) / limit
	}
	return &Pagination{
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
		HasPrev:    page > 1,
	}
}

// Meta carries the per-response metadata.
type Meta struct {
	Timestamp  string      `json:"timestamp"`
	RequestID  string      `json:"requestId,omitempty"`
	Version    string      `json:"version"`
	Pagination *Pagination `json:"pagination,omitempty"`
}

// ErrorBody is the error arm of the envelope.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Envelope is the uniform response shape.
type Envelope struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorBody `json:"error,omitempty"`
	Meta    Meta       `json:"meta"`
}

func newMeta(r *http.Request) Meta {
	return Meta{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		RequestID: middleware.GetReqID(r.Context()),
		Version:   APIVersion,
	}
}

func write(w http.ResponseWriter, status int, env *Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}

// JSON writes a success envelope.
func JSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	write(w, status, &Envelope{Success: true, Data: data, Meta: newMeta(r)})
}

// Page writes a success envelope with pagination meta.
func Page(w http.ResponseWriter, r *http.Request, status int, data any, pagination *Pagination) {
	meta := newMeta(r)
	meta.Pagination = pagination
	write(w, status, &Envelope{Success: true, Data: data, Meta: meta})
}

// Error writes a failure envelope.
func Error(w http.ResponseWriter, r *http.Request, status int, code, message string, details any) {
	env := &Envelope{
		Success: false,
		Error:   &ErrorBody{Code: code, Message: message, Details: details},
		Meta:    newMeta(r),
	}
	write(w, status, env)
}

// NoContent writes an empty 204 response.
func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}
