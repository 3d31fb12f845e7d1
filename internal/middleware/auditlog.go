// Captures every request as an audit log entry and hands it to
// internal/audit's buffered pipeline, keeping the write off the request's
// hot path. Request bodies are optionally captured (max 10KB) with
// password/token/secret fields redacted before they reach the buffer.
package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/apexbridge-tech/bugspotter/internal/audit"
	"github.com/apexbridge-tech/bugspotter/internal/models"
)

// AuditLogger captures HTTP requests and forwards them to an audit
// pipeline for buffered persistence.
type AuditLogger struct {
	pipeline        *audit.Pipeline
	logRequestBody  bool
	sensitiveFields []string
}

// NewAuditLogger creates an audit logging middleware backed by pipeline.
// logBodies enables capturing (redacted) JSON request bodies up to 10KB.
func NewAuditLogger(pipeline *audit.Pipeline, logBodies bool) *AuditLogger {
	return &AuditLogger{
		pipeline:        pipeline,
		logRequestBody:  logBodies,
		sensitiveFields: []string{"password", "token", "secret", "apiKey", "api_key"},
	}
}

func (a *AuditLogger) redactSensitiveData(data map[string]interface{}) map[string]interface{} {
	redacted := make(map[string]interface{}, len(data))
	for key, value := range data {
		isSensitive := false
		for _, field := range a.sensitiveFields {
			if key == field {
				isSensitive = true
				break
			}
		}

		switch {
		case isSensitive:
			redacted[key] = "[REDACTED]"
		default:
			if nested, ok := value.(map[string]interface{}); ok {
				redacted[key] = a.redactSensitiveData(nested)
			} else {
				redacted[key] = value
			}
		}
	}
	return redacted
}

// Middleware returns the gin handler that records one audit entry per
// request once the response has been written.
func (a *AuditLogger) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()

		var requestBody map[string]interface{}
		if a.logRequestBody && c.Request.Body != nil {
			bodyBytes, _ := io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))

			if len(bodyBytes) > 0 && len(bodyBytes) < 10240 {
				if err := json.Unmarshal(bodyBytes, &requestBody); err == nil {
					requestBody = a.redactSensitiveData(requestBody)
				}
			}
		}

		c.Next()

		if a.pipeline == nil {
			return
		}

		var userID *string
		if v, exists := c.Get("userID"); exists {
			if id, ok := v.(string); ok && id != "" {
				userID = &id
			}
		}

		var errMsg *string
		if len(c.Errors) > 0 {
			msg := c.Errors.String()
			errMsg = &msg
		}

		status := c.Writer.Status()
		details := map[string]interface{}{
			"duration_ms": time.Since(startTime).Milliseconds(),
		}
		if requestBody != nil {
			details["request_body"] = requestBody
		}
		detailsJSON, _ := json.Marshal(details)

		a.pipeline.Record(models.AuditLog{
			Timestamp:    startTime,
			UserID:       userID,
			Action:       c.Request.Method,
			Resource:     c.Request.URL.Path,
			IPAddress:    c.ClientIP(),
			UserAgent:    c.Request.UserAgent(),
			Success:      status < 400,
			ErrorMessage: errMsg,
			Details:      models.RawJSON(detailsJSON),
		})
	}
}
