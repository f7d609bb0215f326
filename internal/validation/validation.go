// Package validation provides input validation for the monitor's HTTP and
// RPC surfaces.
package validation

import (
	"math"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/fraudlens/paysim-monitor/internal/logging"
)

// MaxRequestSize is the maximum request body size (1MB)
const MaxRequestSize = 1 << 20 // 1MB

// MaxStringLength is the maximum length for string fields
const MaxStringLength = 10000

// MaxAccountLength bounds PaySim account identifiers such as C1231006815.
const MaxAccountLength = 64

var accountRegex = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,64}$`)

// RequestSizeMiddleware limits request body size
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// IsValidAccount checks if a string looks like an account identifier.
func IsValidAccount(name string) bool {
	return accountRegex.MatchString(name)
}

// SanitizeString removes dangerous characters and limits length
func SanitizeString(s string, maxLen int) string {
	s = strings.TrimSpace(s)

	if len(s) > maxLen {
		s = s[:maxLen]
	}

	// Remove null bytes
	s = strings.ReplaceAll(s, "\x00", "")

	return s
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	return e[0].Field + ": " + e[0].Message
}

// Validate validates a request and returns errors
func Validate(validators ...func() *ValidationError) ValidationErrors {
	var errs ValidationErrors
	for _, v := range validators {
		if err := v(); err != nil {
			errs = append(errs, *err)
		}
	}
	return errs
}

// Required checks if a field is non-empty
func Required(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if strings.TrimSpace(value) == "" {
			return &ValidationError{Field: field, Message: "is required"}
		}
		return nil
	}
}

// ValidAccount checks if a field is a well-formed account identifier.
func ValidAccount(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if value == "" {
			return nil // Use Required for required fields
		}
		if !IsValidAccount(value) {
			return &ValidationError{Field: field, Message: "must be 1-64 letters, digits, '.', '_' or '-'"}
		}
		return nil
	}
}

// AccountParamMiddleware validates the :name URL parameter on routes that use it.
func AccountParamMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		name := c.Param("name")
		if name != "" && !IsValidAccount(name) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_parameter",
				"message": "name must be 1-64 letters, digits, '.', '_' or '-'",
			})
			return
		}
		if name != "" {
			c.Request = c.Request.WithContext(logging.WithAccount(c.Request.Context(), name))
		}
		c.Next()
	}
}

// Query reads typed query parameters and collects every parse failure.
// Absent or blank parameters take their default.
type Query struct {
	values url.Values
	errs   ValidationErrors
}

// NewQuery wraps raw query values.
func NewQuery(values url.Values) *Query {
	return &Query{values: values}
}

func (q *Query) raw(field string) string {
	return strings.TrimSpace(q.values.Get(field))
}

func (q *Query) fail(field, msg string) {
	q.errs = append(q.errs, ValidationError{Field: field, Message: msg})
}

// Int parses field as a base-10 integer.
func (q *Query) Int(field string, def int) int {
	s := q.raw(field)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		q.fail(field, "must be an integer")
		return def
	}
	return n
}

// Float parses field as a finite number.
func (q *Query) Float(field string, def float64) float64 {
	s := q.raw(field)
	if s == "" {
		return def
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		q.fail(field, "must be a finite number")
		return def
	}
	return f
}

// OptionalInt64 parses field as an integer, returning nil when absent.
func (q *Query) OptionalInt64(field string) *int64 {
	s := q.raw(field)
	if s == "" {
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		q.fail(field, "must be an integer")
		return nil
	}
	return &n
}

// String returns field trimmed and bounded by MaxStringLength.
func (q *Query) String(field, def string) string {
	s := q.raw(field)
	if s == "" {
		return def
	}
	return SanitizeString(s, MaxStringLength)
}

// Err returns the collected errors, or nil.
func (q *Query) Err() error {
	if len(q.errs) == 0 {
		return nil
	}
	return q.errs
}
