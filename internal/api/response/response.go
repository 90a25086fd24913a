// internal/api/response/response.go
package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/newthinker/candlescope/internal/core"
)

// Meta contains response metadata. Paging fields are only set for list
// responses.
type Meta struct {
	Timestamp  time.Time `json:"timestamp"`
	Page       int       `json:"page,omitempty"`
	PageSize   int       `json:"page_size,omitempty"`
	Total      int       `json:"total,omitempty"`
	TotalPages int       `json:"total_pages,omitempty"`
}

// SuccessResponse is the standard success response format.
type SuccessResponse struct {
	Data any  `json:"data"`
	Meta Meta `json:"meta"`
}

// ErrorDetail contains error information.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Cause   string `json:"cause,omitempty"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// Paging describes one page of a list response.
type Paging struct {
	Page       int
	PageSize   int
	Total      int
	TotalPages int
}

// JSON writes a success response with data.
func JSON(w http.ResponseWriter, status int, data any) {
	write(w, status, SuccessResponse{
		Data: data,
		Meta: Meta{Timestamp: time.Now().UTC()},
	})
}

// Paged writes a success response carrying paging metadata.
func Paged(w http.ResponseWriter, data any, p Paging) {
	write(w, http.StatusOK, SuccessResponse{
		Data: data,
		Meta: Meta{
			Timestamp:  time.Now().UTC(),
			Page:       p.Page,
			PageSize:   p.PageSize,
			Total:      p.Total,
			TotalPages: p.TotalPages,
		},
	})
}

// Error writes an error response.
func Error(w http.ResponseWriter, status int, err error) {
	write(w, status, ErrorResponse{Error: Detail(err)})
}

// Fail writes an error response with the status derived from the error code.
func Fail(w http.ResponseWriter, err error) {
	Error(w, StatusOf(err), err)
}

// Detail flattens err into the wire error shape. Errors without a code are
// reported as internal without leaking their text.
func Detail(err error) ErrorDetail {
	detail := ErrorDetail{
		Code:    "INTERNAL_ERROR",
		Message: "an internal error occurred",
	}

	var coreErr *core.Error
	if errors.As(err, &coreErr) {
		detail.Code = coreErr.Code
		detail.Message = coreErr.Message
		if coreErr.Cause != nil {
			detail.Cause = coreErr.Cause.Error()
		}
	}
	return detail
}

// StatusOf maps an error code to an HTTP status.
func StatusOf(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, core.ErrUpstreamUnavailable), errors.Is(err, core.ErrUpstreamStatus),
		errors.Is(err, core.ErrInvalidPayload):
		return http.StatusBadGateway
	case errors.Is(err, core.ErrNoData), errors.Is(err, core.ErrSymbolNotFound),
		errors.Is(err, core.ErrPatternNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrConfigInvalid), errors.Is(err, core.ErrConfigMissing):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func write(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
