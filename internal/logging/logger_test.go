package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		m := map[string]interface{}{}
		require.NoError(t, json.Unmarshal([]byte(line), &m), line)
		out = append(out, m)
	}
	return out
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DEBUG, ParseLevel("debug"))
	assert.Equal(t, WARN, ParseLevel("Warning"))
	assert.Equal(t, INFO, ParseLevel("nonsense"))
	assert.Equal(t, "ERROR", ERROR.String())
}

func TestLoggerKeyValueArgs(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, &Config{Level: "DEBUG", JSONFormat: true}).WithComponent("quota")

	l.Info("Usage consumed", "account_id", "a1", "used", 3, "err", errors.New("boom"))

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "Usage consumed", lines[0]["message"])
	assert.Equal(t, "quota", lines[0]["component"])
	assert.Equal(t, "a1", lines[0]["account_id"])
	assert.Equal(t, float64(3), lines[0]["used"])
	assert.Equal(t, "boom", lines[0]["err"])
}

func TestWithComponentReplacesComponent(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, &Config{Level: "INFO", JSONFormat: true, Component: "app"}).
		WithField("k", "v").
		WithComponent("account-cache")

	l.Info("evicted")

	raw := buf.String()
	assert.Equal(t, 1, strings.Count(raw, `"component"`), raw)
	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "account-cache", lines[0]["component"])
	assert.Equal(t, "v", lines[0]["k"])
}

func TestLoggerPrintfArgs(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, &Config{Level: "INFO", JSONFormat: true})
	l.Warn("retrying in %d seconds", 5)

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "retrying in 5 seconds", lines[0]["message"])
	assert.Equal(t, "warn", lines[0]["level"])
}

func TestLoggerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, &Config{Level: "ERROR", JSONFormat: true})
	l.Info("hidden")
	l.Debug("hidden")
	l.Error("shown")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "shown", lines[0]["message"])
}

func TestWithHelpersDoNotMutateParent(t *testing.T) {
	var buf bytes.Buffer
	parent := NewWithWriter(&buf, &Config{Level: "INFO", JSONFormat: true})
	child := parent.WithField("k", "v").WithError(errors.New("bad"))
	assert.Same(t, parent, parent.WithError(nil))

	parent.Info("parent")
	child.Info("child")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)
	assert.NotContains(t, lines[0], "k")
	assert.Equal(t, "v", lines[1]["k"])
	assert.Equal(t, "bad", lines[1]["error"])
}

func TestContextRoundTrip(t *testing.T) {
	l := NewWithWriter(&bytes.Buffer{}, &Config{JSONFormat: true})
	ctx := NewContext(context.Background(), l)
	assert.Same(t, l, FromContext(ctx))
	assert.NotNil(t, FromContext(context.Background()))
	assert.Len(t, GenerateTraceID(), 32)
}

func TestGinMiddlewarePropagatesTraceID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	base := NewWithWriter(&buf, &Config{Level: "INFO", JSONFormat: true})

	r := gin.New()
	r.Use(GinMiddleware(base))
	r.GET("/ping", func(c *gin.Context) {
		assert.Equal(t, "trace-123", TraceIDFromContext(c.Request.Context()))
		FromContext(c.Request.Context()).Info("inside handler")
		c.Status(http.StatusTeapot)
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(TraceHeader, "trace-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "trace-123", w.Header().Get(TraceHeader))
	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "trace-123", lines[0]["trace_id"])
	assert.Equal(t, "Request rejected", lines[1]["message"])
	assert.Equal(t, float64(http.StatusTeapot), lines[1]["status_code"])
}
