// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package logging

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// RequestIDHeader carries the request correlation id in and out.
const RequestIDHeader = "X-Request-ID"

const requestIDKey = "request_id"

// RequestID returns the correlation id assigned by GinLogrusLogger, or "".
func RequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

// GinLogrusLogger assigns each request an id (reusing the inbound header when
// present) and logs one line per request once it completes.
func GinLogrusLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		reqID := c.GetHeader(RequestIDHeader)
		if reqID == "" {
			reqID = uuid.NewString()[:8]
		}
		c.Set(requestIDKey, reqID)
		c.Header(RequestIDHeader, reqID)

		c.Next()

		path := c.Request.URL.Path
		if raw := c.Request.URL.RawQuery; raw != "" {
			path += "?" + raw
		}
		status := c.Writer.Status()
		entry := log.WithField(requestIDKey, reqID)
		if errs := c.Errors.ByType(gin.ErrorTypePrivate).String(); errs != "" {
			entry = entry.WithField("error", errs)
		}

		msg := "%3d | %13v | %-7s %s"
		latency := time.Since(start).Truncate(time.Microsecond)
		switch {
		case status >= http.StatusInternalServerError:
			entry.Errorf(msg, status, latency, c.Request.Method, path)
		case status >= http.StatusBadRequest:
			entry.Warnf(msg, status, latency, c.Request.Method, path)
		default:
			entry.Debugf(msg, status, latency, c.Request.Method, path)
		}
	}
}

// GinLogrusRecovery converts handler panics into a 500 and logs them.
func GinLogrusRecovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		log.WithField(requestIDKey, RequestID(c)).Errorf("panic recovered: %v", recovered)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	})
}
