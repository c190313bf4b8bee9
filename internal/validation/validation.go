// Package validation provides boundary input validation for the antifraud API.
//
// Malformed input is rejected here, before it reaches the evaluation engine:
// the core assumes well-formed amounts, IPv4 literals, Luhn-valid card
// numbers and known region codes.
package validation

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
)

// MaxRequestSize is the maximum request body size (64KB). Requests to this
// API are small JSON documents; anything larger is malformed.
const MaxRequestSize = 64 << 10

// ipv4Regex matches dotted-quad IPv4 literals with octets 0-255.
var ipv4Regex = regexp.MustCompile(`^((25[0-5]|2[0-4]\d|1\d\d|[1-9]?\d)\.){3}(25[0-5]|2[0-4]\d|1\d\d|[1-9]?\d)$`)

// RequestSizeMiddleware limits request body size.
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// IsValidIPv4 checks if a string is a dotted-quad IPv4 literal.
func IsValidIPv4(ip string) bool {
	return ipv4Regex.MatchString(ip)
}

// IsValidCardNumber checks if a string is a digit string passing the Luhn
// checksum. https://en.wikipedia.org/wiki/Luhn_algorithm
func IsValidCardNumber(number string) bool {
	if len(number) < 2 {
		return false
	}
	total := 0
	double := true
	for i := len(number) - 2; i >= 0; i-- {
		digit := int(number[i] - '0')
		if digit < 0 || digit > 9 {
			return false
		}
		if double {
			digit *= 2
			if digit > 9 {
				digit -= 9
			}
		}
		double = !double
		total += digit
	}
	check := int(number[len(number)-1] - '0')
	if check < 0 || check > 9 {
		return false
	}
	return (total+check)%10 == 0
}

// ValidationError represents a single field validation failure.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	return e[0].Field + ": " + e[0].Message
}

// Validate runs the given field validators and collects their failures.
func Validate(validators ...func() *ValidationError) ValidationErrors {
	var errs ValidationErrors
	for _, v := range validators {
		if err := v(); err != nil {
			errs = append(errs, *err)
		}
	}
	return errs
}

// Required checks if a field is non-empty.
func Required(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if strings.TrimSpace(value) == "" {
			return &ValidationError{Field: field, Message: "is required"}
		}
		return nil
	}
}

// PositiveAmount checks if an amount is at least 1.
func PositiveAmount(field string, value int64) func() *ValidationError {
	return func() *ValidationError {
		if value < 1 {
			return &ValidationError{Field: field, Message: "must be greater than zero"}
		}
		return nil
	}
}

// IPv4 checks if a field is a dotted-quad IPv4 literal.
func IPv4(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if !IsValidIPv4(value) {
			return &ValidationError{Field: field, Message: "must be a valid IPv4 address"}
		}
		return nil
	}
}

// CardNumber checks if a field passes the Luhn checksum.
func CardNumber(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if !IsValidCardNumber(value) {
			return &ValidationError{Field: field, Message: "must be a valid card number"}
		}
		return nil
	}
}

// OneOf checks if a field is one of the allowed literal values.
func OneOf(field, value string, allowed ...string) func() *ValidationError {
	return func() *ValidationError {
		for _, a := range allowed {
			if value == a {
				return nil
			}
		}
		return &ValidationError{Field: field, Message: "must be one of " + strings.Join(allowed, "|")}
	}
}

// CardNumberParamMiddleware validates the :number URL parameter on routes
// that use it, rejecting non-Luhn values before the handler runs.
func CardNumberParamMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		number := c.Param("number")
		if number != "" && !IsValidCardNumber(number) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_card_number",
				"message": "card number must be a digit string passing the Luhn checksum",
			})
			return
		}
		c.Next()
	}
}

// IPParamMiddleware validates the :ip URL parameter on routes that use it.
func IPParamMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.Param("ip")
		if ip != "" && !IsValidIPv4(ip) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_ip",
				"message": "ip must be a dotted-quad IPv4 address",
			})
			return
		}
		c.Next()
	}
}
