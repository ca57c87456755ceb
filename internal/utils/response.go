package utils

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"inpeak-backend/internal/apperr"
)

// Response represents a standardized response structure.
// It includes a status code, a message, and data.
type Response struct {
	Status  int         `json:"status"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

// NewResponse creates a new Response instance.
func NewResponse(status int, message string, data interface{}) Response {
	return Response{
		Status:  status,
		Message: message,
		Data:    data,
	}
}

// NewSuccessResponse creates a new success Response instance.
// Defaults status to 200 (OK).
func NewSuccessResponse(message string, data interface{}) Response {
	return Response{
		Status:  http.StatusOK,
		Message: message,
		Data:    data,
	}
}

// NewErrorResponse creates a new error Response instance.
// Data is explicitly set to nil.
func NewErrorResponse(status int, message string) Response {
	return Response{
		Status:  status,
		Message: message,
		Data:    nil,
	}
}

// RespondError writes err with the status of its apperr kind. Errors without
// a kind are reported as 500 and their text is not exposed.
func RespondError(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	message := err.Error()
	var appErr *apperr.Error
	if !errors.As(err, &appErr) || status == http.StatusInternalServerError {
		message = "Internal server error"
	}
	_ = c.Error(err)
	c.JSON(status, NewErrorResponse(status, message))
}
