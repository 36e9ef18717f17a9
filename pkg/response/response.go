// Package response writes the JSON envelope shared by every backend endpoint
// except /health and /query, whose bodies are part of the client contract.
package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response is the unified API response format.
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// AppError carries the HTTP status and user-facing message for a failed request.
// Cause is logged by the caller and never sent to the client.
type AppError struct {
	HTTPStatus int
	Code       int
	Message    string
	Cause      error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Cause }

func newAppError(status int, msg string) *AppError {
	return &AppError{HTTPStatus: status, Code: status, Message: msg}
}

func NewBadRequest(msg string) *AppError { return newAppError(http.StatusBadRequest, msg) }
func NewNotFound(msg string) *AppError   { return newAppError(http.StatusNotFound, msg) }
func NewConflict(msg string) *AppError   { return newAppError(http.StatusConflict, msg) }

// NewServerError hides cause behind msg.
func NewServerError(msg string, cause error) *AppError {
	e := newAppError(http.StatusInternalServerError, msg)
	e.Cause = cause
	return e
}

func write(c *gin.Context, status int, resp Response) {
	if status >= http.StatusBadRequest {
		c.AbortWithStatusJSON(status, resp)
		return
	}
	c.JSON(status, resp)
}

// Success sends a 200 OK response with data.
func Success(c *gin.Context, data interface{}) {
	write(c, http.StatusOK, Response{Message: "ok", Data: data})
}

// Message sends a 200 OK response whose message is meant for the end user.
func Message(c *gin.Context, msg string, data interface{}) {
	write(c, http.StatusOK, Response{Message: msg, Data: data})
}

// Created sends a 201 Created response with data.
func Created(c *gin.Context, data interface{}) {
	write(c, http.StatusCreated, Response{Message: "created", Data: data})
}

// Error sends err as an error response. An *AppError keeps its status and
// message; anything else becomes a 500 with a generic message.
func Error(c *gin.Context, err error) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		write(c, appErr.HTTPStatus, Response{Code: appErr.Code, Message: appErr.Message})
		return
	}
	ServerError(c, "internal server error")
}

func BadRequest(c *gin.Context, msg string) {
	write(c, http.StatusBadRequest, Response{Code: http.StatusBadRequest, Message: msg})
}

func Unauthorized(c *gin.Context, msg string) {
	write(c, http.StatusUnauthorized, Response{Code: http.StatusUnauthorized, Message: msg})
}

func NotFound(c *gin.Context, msg string) {
	write(c, http.StatusNotFound, Response{Code: http.StatusNotFound, Message: msg})
}

// TooManyRequests is used by the rate limiter, so it aborts the chain like
// every other error helper.
func TooManyRequests(c *gin.Context, msg string) {
	write(c, http.StatusTooManyRequests, Response{Code: http.StatusTooManyRequests, Message: msg})
}

func ServerError(c *gin.Context, msg string) {
	write(c, http.StatusInternalServerError, Response{Code: http.StatusInternalServerError, Message: msg})
}
