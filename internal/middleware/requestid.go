package middleware

import (
	"time" // Request timing

	"github.com/gin-gonic/gin"   // Gin web framework
	"github.com/google/uuid"     // Request ids
	"github.com/sirupsen/logrus" // Logging library
)

const (
	// RequestIDHeader carries the request id in and out
	RequestIDHeader = "X-Request-ID"
	loggerKey       = "logger"
)

// RequestIDMiddleware tags every request with an id and a logger carrying it
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := c.GetHeader(RequestIDHeader) // Reuse the caller's id if sent
		if reqID == "" {
			reqID = uuid.NewString() // Otherwise mint one
		}
		c.Header(RequestIDHeader, reqID) // Echo it back
		entry := logrus.WithField("request_id", reqID)
		c.Set(loggerKey, entry) // Store logger in context

		start := time.Now()
		c.Next() // Process request
		entry.WithFields(logrus.Fields{
			"method":  c.Request.Method,           // HTTP method
			"path":    c.FullPath(),               // Route
			"status":  c.Writer.Status(),          // Response status
			"latency": time.Since(start).String(), // Duration
		}).Info("Request handled")
	}
}

// Logger returns the request logger, or the standard one outside a request
func Logger(c *gin.Context) *logrus.Entry {
	if v, ok := c.Get(loggerKey); ok {
		if entry, ok := v.(*logrus.Entry); ok {
			return entry
		}
	}
	return logrus.NewEntry(logrus.StandardLogger())
}
