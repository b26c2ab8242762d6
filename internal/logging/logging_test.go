// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package logging

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogFormatter_Format(t *testing.T) {
	entry := log.NewEntry(log.New())
	entry.Time = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	entry.Level = log.WarnLevel
	entry.Message = "queue full\n"
	entry.Data = log.Fields{"request_id": "a1b2c3d4", "tier": "simple", "op": "create"}

	out, err := (&LogFormatter{}).Format(entry)
	require.NoError(t, err)
	assert.Equal(t, "[2026-03-01 09:00:00] [a1b2c3d4] [warn ] queue full | op=create, tier=simple\n", string(out))
}

func TestLogFormatter_NoRequestID(t *testing.T) {
	entry := log.NewEntry(log.New())
	entry.Time = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	entry.Level = log.InfoLevel
	entry.Message = "started"

	out, err := (&LogFormatter{}).Format(entry)
	require.NoError(t, err)
	assert.Equal(t, "[2026-03-01 09:00:00] [--------] [info ] started\n", string(out))
}

func TestConfigureLogOutput_File(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	require.NoError(t, ConfigureLogOutput(true, dir))
	log.Info("hello file")
	require.NoError(t, ConfigureLogOutput(false, dir))

	data, err := os.ReadFile(filepath.Join(dir, "main.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello file")
}

func TestGinLogrusLogger_RequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(GinLogrusLogger(), GinLogrusRecovery())
	var seen string
	r.GET("/ok", func(c *gin.Context) {
		seen = RequestID(c)
		c.Status(http.StatusNoContent)
	})
	r.GET("/panic", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	req.Header.Set(RequestIDHeader, "req-77")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "req-77", seen)
	assert.Equal(t, "req-77", w.Header().Get(RequestIDHeader))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))
	assert.Len(t, w.Header().Get(RequestIDHeader), 8)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
