// internal/utils/response.go
package utils

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	apperrors "ffb-control-service/internal/errors"
)

// APIResponse represents standard API response structure
type APIResponse struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
	Error     *APIError   `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	RequestID string      `json:"request_id,omitempty"`
}

// APIError represents error information
type APIError struct {
	Code            string `json:"code"`
	Message         string `json:"message"`
	Details         string `json:"details,omitempty"`
	SuggestedAction string `json:"suggested_action,omitempty"`
}

// SuccessResponse sends a successful response
func SuccessResponse(c *gin.Context, statusCode int, message string, data interface{}) {
	response := APIResponse{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: time.Now(),
		RequestID: getRequestID(c),
	}

	c.JSON(statusCode, response)
}

// ErrorResponse sends an error response
func ErrorResponse(c *gin.Context, statusCode int, message string, err error) {
	apiError := &APIError{
		Code:    getErrorCode(statusCode),
		Message: message,
	}

	if err != nil {
		apiError.Details = err.Error()
	}

	response := APIResponse{
		Success:   false,
		Message:   message,
		Error:     apiError,
		Timestamp: time.Now(),
		RequestID: getRequestID(c),
	}

	c.JSON(statusCode, response)
}

// AppErrorResponse sends an error response whose status, code and suggested
// action come from the error kind. Errors without a kind are reported as 500.
func AppErrorResponse(c *gin.Context, message string, err error) {
	appErr, ok := apperrors.As(err)
	if !ok {
		ErrorResponse(c, http.StatusInternalServerError, message, err)
		return
	}

	response := APIResponse{
		Success: false,
		Message: message,
		Error: &APIError{
			Code:            string(appErr.Kind),
			Message:         appErr.Message,
			Details:         appErr.Details,
			SuggestedAction: appErr.SuggestedAction,
		},
		Timestamp: time.Now(),
		RequestID: getRequestID(c),
	}

	c.JSON(appErr.HTTPStatus(), response)
}

// ValidationErrorResponse sends validation error response
func ValidationErrorResponse(c *gin.Context, errors map[string]string) {
	apiError := &APIError{
		Code:    "VALIDATION_ERROR",
		Message: "Request validation failed",
	}

	response := APIResponse{
		Success:   false,
		Message:   "Validation failed",
		Error:     apiError,
		Data:      gin.H{"validation_errors": errors},
		Timestamp: time.Now(),
		RequestID: getRequestID(c),
	}

	c.JSON(http.StatusBadRequest, response)
}

// BindErrorResponse reports a request body that failed to bind. Binding tag
// failures are listed per field; malformed JSON is a plain 400.
func BindErrorResponse(c *gin.Context, err error) {
	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	fields := make(map[string]string, len(fieldErrors))
	for _, fe := range fieldErrors {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		fields[strings.ToLower(fe.Field())] = "failed " + rule
	}
	ValidationErrorResponse(c, fields)
}

// getRequestID extracts request ID from context
func getRequestID(c *gin.Context) string {
	if requestID, exists := c.Get("request_id"); exists {
		if id, ok := requestID.(string); ok {
			return id
		}
	}
	return ""
}

// getErrorCode returns error code based on HTTP status
func getErrorCode(statusCode int) string {
	switch statusCode {
	case http.StatusBadRequest:
		return "BAD_REQUEST"
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusConflict:
		return "CONFLICT"
	case http.StatusInternalServerError:
		return "INTERNAL_SERVER_ERROR"
	case http.StatusBadGateway:
		return "BAD_GATEWAY"
	case http.StatusServiceUnavailable:
		return "SERVICE_UNAVAILABLE"
	case http.StatusGatewayTimeout:
		return "GATEWAY_TIMEOUT"
	default:
		return "UNKNOWN_ERROR"
	}
}
