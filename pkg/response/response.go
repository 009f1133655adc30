// Package response provides the uniform HTTP response envelope.
// Every API returns the same structure so the mobile client can handle
// results generically.
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response is the uniform envelope.
// code: business status code (0 means success)
// message: human-readable summary
// data: optional payload
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Business status codes.
const (
	CodeSuccess       = 0    // success
	CodeBadRequest    = 1000 // invalid request parameters
	CodeUnauthorized  = 1001 // not authenticated
	CodeForbidden     = 1002 // not allowed
	CodeNotFound      = 1003 // resource missing
	CodeInternalError = 1004 // server error
	CodeRateLimited   = 1005 // too many requests

	CodeUserExists    = 1101 // username already taken
	CodeUserNotFound  = 1102 // no such user
	CodePasswordWrong = 1103 // wrong password
	CodePremiumOnly   = 1104 // feature requires premium

	CodeHouseNotFound    = 1201 // boarding house missing
	CodeNoCoordinates    = 1202 // house has no usable coordinates
	CodeNoStoredLocation = 1203 // user has no stored position

	CodeTripNotFound  = 1301 // tracking session missing
	CodeTripNotActive = 1302 // tracking session already ended
	CodeTripConflict  = 1303 // concurrent update, retry with fresh state

	CodeAlertLimit = 1401 // daily broadcast limit reached
)

// Success writes a 200 response with the given payload.
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

// SuccessWithMessage writes a 200 response with a custom message.
func SuccessWithMessage(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: message,
		Data:    data,
	})
}

// Created writes a 201 response with the given payload.
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{
		Code:    CodeSuccess,
		Message: "created",
		Data:    data,
	})
}

// NoContent writes an empty 204 response.
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// Error writes an error response with matching HTTP and business codes.
func Error(c *gin.Context, httpCode int, message string) {
	c.JSON(httpCode, Response{
		Code:    httpCode,
		Message: message,
	})
}

// ErrorWithCode writes an error response with an explicit business code.
func ErrorWithCode(c *gin.Context, httpCode, bizCode int, message string) {
	c.JSON(httpCode, Response{
		Code:    bizCode,
		Message: message,
	})
}

// BadRequest writes a 400 response.
func BadRequest(c *gin.Context, message string) {
	ErrorWithCode(c, http.StatusBadRequest, CodeBadRequest, message)
}

// Unauthorized writes a 401 response.
func Unauthorized(c *gin.Context, message string) {
	ErrorWithCode(c, http.StatusUnauthorized, CodeUnauthorized, message)
}

// Forbidden writes a 403 response.
func Forbidden(c *gin.Context, message string) {
	ErrorWithCode(c, http.StatusForbidden, CodeForbidden, message)
}

// NotFound writes a 404 response.
func NotFound(c *gin.Context, message string) {
	ErrorWithCode(c, http.StatusNotFound, CodeNotFound, message)
}

// Conflict writes a 409 response; callers should reload and retry.
func Conflict(c *gin.Context, message string) {
	ErrorWithCode(c, http.StatusConflict, CodeTripConflict, message)
}

// TooManyRequests writes a 429 response.
func TooManyRequests(c *gin.Context, message string) {
	ErrorWithCode(c, http.StatusTooManyRequests, CodeRateLimited, message)
}

// InternalError writes a 500 response.
func InternalError(c *gin.Context, message string) {
	ErrorWithCode(c, http.StatusInternalServerError, CodeInternalError, message)
}

// Domain-specific shorthands used by the handlers.

// UserNotFound writes a 404 with the user business code.
func UserNotFound(c *gin.Context) {
	ErrorWithCode(c, http.StatusNotFound, CodeUserNotFound, "user not found")
}

// HouseNotFound writes a 404 with the boarding house business code.
func HouseNotFound(c *gin.Context) {
	ErrorWithCode(c, http.StatusNotFound, CodeHouseNotFound, "boarding house not found")
}

// TripNotFound writes a 404 with the tracking session business code.
func TripNotFound(c *gin.Context) {
	ErrorWithCode(c, http.StatusNotFound, CodeTripNotFound, "tracking session not found")
}

// TripNotActive writes a 400 with the non-active session business code.
func TripNotActive(c *gin.Context) {
	ErrorWithCode(c, http.StatusBadRequest, CodeTripNotActive, "tracking session is not active")
}

// PremiumOnly writes a 403 with the premium-feature business code.
func PremiumOnly(c *gin.Context) {
	ErrorWithCode(c, http.StatusForbidden, CodePremiumOnly, "premium feature")
}

// NoStoredLocation writes a 404 telling the caller to supply coordinates.
func NoStoredLocation(c *gin.Context) {
	ErrorWithCode(c, http.StatusNotFound, CodeNoStoredLocation,
		"no stored location, provide current coordinates")
}
