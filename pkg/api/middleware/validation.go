package middleware

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"taskforge/pkg/models"
)

// ValidatorConfig holds validation configuration for the Producer API.
type ValidatorConfig struct {
	MaxPayloadSize   int64    // Maximum job_data size in bytes
	MaxNameLength    int      // Maximum job_name length
	CommandBlacklist []string // Dangerous patterns rejected for the shell handler specifically
}

// DefaultValidatorConfig returns safe defaults.
func DefaultValidatorConfig() ValidatorConfig {
	return ValidatorConfig{
		MaxPayloadSize:   1 << 20, // 1MB
		MaxNameLength:    255,
		CommandBlacklist: []string{"rm -rf /", ":(){ :|:& };:", "mkfs", "dd if="},
	}
}

// Validator performs request validation for the Producer API.
type Validator struct {
	config           ValidatorConfig
	dangerousPattern *regexp.Regexp
}

// NewValidator creates a new validator with the given config.
func NewValidator(config ValidatorConfig) *Validator {
	patterns := make([]string, len(config.CommandBlacklist))
	for i, p := range config.CommandBlacklist {
		patterns[i] = regexp.QuoteMeta(p)
	}
	pattern := regexp.MustCompile(strings.Join(patterns, "|"))

	return &Validator{config: config, dangerousPattern: pattern}
}

// ValidateJobName checks a job's name.
func (v *Validator) ValidateJobName(name string) error {
	if len(name) == 0 {
		return &ValidationError{Field: "job_name", Message: "job_name is required"}
	}
	if len(name) > v.config.MaxNameLength {
		return &ValidationError{Field: "job_name", Message: "job_name exceeds maximum length"}
	}
	return nil
}

// ValidatePriority checks a requested priority falls in the allowed range.
// Values at most one step outside [MinPriority, MaxPriority] pass and are
// clamped by the Producer API (spec.md §3 invariant 4); anything further
// out is rejected.
func (v *Validator) ValidatePriority(priority int) error {
	if priority < models.MinPriority-1 || priority > models.MaxPriority+1 {
		return &ValidationError{Field: "priority", Message: "priority is far outside the valid range"}
	}
	return nil
}

// ValidatePayloadSize checks job_data against the configured limit.
func (v *Validator) ValidatePayloadSize(payload []byte) error {
	if int64(len(payload)) > v.config.MaxPayloadSize {
		return &ValidationError{Field: "job_data", Message: "job_data exceeds maximum size"}
	}
	return nil
}

// ValidateShellCommand rejects payloads matching known-dangerous shell
// patterns, applied by the shell handler's enqueue path specifically.
func (v *Validator) ValidateShellCommand(command string) error {
	if v.dangerousPattern.MatchString(command) {
		return &ValidationError{Field: "job_data", Message: "command contains a blacklisted pattern"}
	}
	return nil
}

// ValidationError represents a validation failure.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// BodySizeLimitMiddleware limits request body size.
func BodySizeLimitMiddleware(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{
				"error": "request body too large",
			})
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// SecurityHeadersMiddleware adds security headers.
func SecurityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Next()
	}
}

// RequestIDMiddleware adds a request ID for tracing.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = "req-" + uuid.New().String()
		}
		c.Set("request_id", requestID)
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}
