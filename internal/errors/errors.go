// Package errors defines the API error values returned to HTTP clients.
package errors

import (
	"fmt"
	"net/http"
)

// APIError is an error with a machine-readable code, a human-readable
// message and the HTTP status to return.
type APIError struct {
	// Code is the error code (e.g., "ProductNotFound", "AllocationExhausted").
	Code string `json:"code"`
	// Message is a human-readable description of the error.
	Message string `json:"message"`
	// HTTPStatus is the HTTP status code to return.
	HTTPStatus int `json:"-"`
}

// Error implements the error interface for APIError.
func (e *APIError) Error() string {
	return fmt.Sprintf("APIError %s (%d): %s", e.Code, e.HTTPStatus, e.Message)
}

// Pre-defined API errors.
var (
	// ErrMissingFields is returned when a create request lacks required fields.
	ErrMissingFields = &APIError{
		Code:       "MissingFields",
		Message:    "Missing required fields: link, rmbPrice, weight, sellingPrice",
		HTTPStatus: http.StatusBadRequest,
	}

	// ErrMalformedJSON is returned when the request body is not valid JSON.
	ErrMalformedJSON = &APIError{
		Code:       "MalformedJSON",
		Message:    "The request body is not valid JSON",
		HTTPStatus: http.StatusBadRequest,
	}

	// ErrInvalidProductCode is returned when a path code is not of the form #LTnnn.
	ErrInvalidProductCode = &APIError{
		Code:       "InvalidProductCode",
		Message:    "The product code is not valid",
		HTTPStatus: http.StatusBadRequest,
	}

	// ErrProductNotFound is returned when no product has the requested code.
	ErrProductNotFound = &APIError{
		Code:       "ProductNotFound",
		Message:    "Product not found",
		HTTPStatus: http.StatusNotFound,
	}

	// ErrAllocationExhausted is returned when no free product code was found
	// within the attempt budget.
	ErrAllocationExhausted = &APIError{
		Code:       "AllocationExhausted",
		Message:    "Could not allocate a unique product code",
		HTTPStatus: http.StatusInternalServerError,
	}

	// ErrCommitConflict is returned when every commit collided with a
	// concurrently allocated code.
	ErrCommitConflict = &APIError{
		Code:       "CommitConflict",
		Message:    "Product code collided with concurrent writes; retries exhausted",
		HTTPStatus: http.StatusInternalServerError,
	}

	// ErrDatabase is returned when the product store fails.
	ErrDatabase = &APIError{
		Code:       "DatabaseError",
		Message:    "Database error",
		HTTPStatus: http.StatusInternalServerError,
	}

	// ErrServiceUnavailable is returned when no product store is configured.
	ErrServiceUnavailable = &APIError{
		Code:       "ServiceUnavailable",
		Message:    "Service is not available. Please retry.",
		HTTPStatus: http.StatusServiceUnavailable,
	}

	// ErrMethodNotAllowed is returned when the HTTP method is not supported.
	ErrMethodNotAllowed = &APIError{
		Code:       "MethodNotAllowed",
		Message:    "The specified method is not allowed against this resource",
		HTTPStatus: http.StatusMethodNotAllowed,
	}

	// ErrNotFound is returned for unknown routes.
	ErrNotFound = &APIError{
		Code:       "NotFound",
		Message:    "The requested resource does not exist",
		HTTPStatus: http.StatusNotFound,
	}
)
