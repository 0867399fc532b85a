package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-rewards-backend/internal/http/middleware"
)

// ErrorResponse is the body of every non-2xx answer.
//
//	HTTP/1.1 422 Unprocessable Entity
//	{
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000",
//	  "code": "validation_failed",
//	  "message": "source contains invalid rows",
//	  "errors": ["Row 3: company 'globex' does not exist"]
//	}
type ErrorResponse struct {
	// Echo of X-Request-ID, for matching a client error to server logs
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Stable machine-readable code (see errors.go)
	Code string `json:"code" example:"not_found"`
	// Human-readable message, safe to display
	Message string `json:"message" example:"resource not found"`
	// One entry per problem, e.g. per invalid source row
	Errors []string `json:"errors,omitempty" example:"Row 3: company 'globex' does not exist"`
}

func errorBody(c *gin.Context, code, msg string, errs []string) ErrorResponse {
	return ErrorResponse{
		RequestID: c.Writer.Header().Get("X-Request-ID"),
		Code:      code,
		Message:   msg,
		Errors:    errs,
	}
}

// abortWith writes body and stops the chain. Server errors are logged with
// the request-scoped logger; client errors are left to the access log.
func abortWith(c *gin.Context, status int, body ErrorResponse) {
	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", body.Code).
			Str("error", body.Message).
			Msg("api error")
	}
	c.AbortWithStatusJSON(status, body)
}

func fail(c *gin.Context, status int, code, msg string) {
	abortWith(c, status, errorBody(c, code, msg, nil))
}

// Fail lets the router answer NoRoute/NoMethod with the same envelope.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}
