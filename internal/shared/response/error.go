package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// ErrorResponse represents a standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// Error sends an error response with the given status code.
func Error(c *gin.Context, status int, message string) {
	c.JSON(status, ErrorResponse{Error: message})
}

// ErrorWithCode sends an error response with an error code.
func ErrorWithCode(c *gin.Context, status int, code, message string) {
	c.JSON(status, ErrorResponse{Error: message, Code: code})
}

// BadRequest sends a 400 Bad Request response.
func BadRequest(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, message)
}

// NotFound sends a 404 Not Found response.
func NotFound(c *gin.Context, message string) {
	if message == "" {
		message = "not found"
	}
	Error(c, http.StatusNotFound, message)
}

// Conflict sends a 409 Conflict response.
func Conflict(c *gin.Context, message string) {
	Error(c, http.StatusConflict, message)
}

// PaymentRequired sends a 402 Payment Required response.
func PaymentRequired(c *gin.Context, message string) {
	Error(c, http.StatusPaymentRequired, message)
}

// InternalError sends a 500 Internal Server Error response.
func InternalError(c *gin.Context, message string) {
	if message == "" {
		message = "internal error"
	}
	Error(c, http.StatusInternalServerError, message)
}

// ErrorMapping maps domain errors to HTTP status codes.
type ErrorMapping struct {
	Err    error
	Status int
	Code   string
}

// HandleError handles an error using the provided mappings, falling back
// to a 500 response.
func HandleError(c *gin.Context, err error, mappings []ErrorMapping) {
	for _, m := range mappings {
		if errors.Is(err, m.Err) {
			if m.Code != "" {
				ErrorWithCode(c, m.Status, m.Code, m.Err.Error())
			} else {
				Error(c, m.Status, m.Err.Error())
			}
			return
		}
	}
	InternalError(c, "")
}
