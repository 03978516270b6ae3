package server

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSSEWriter(t *testing.T) {
	w := httptest.NewRecorder()

	sse, err := NewSSEWriter(w)
	require.NoError(t, err)

	require.NoError(t, sse.WriteEvent("state", map[string]string{"stage": "transcribing"}))

	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	body := w.Body.String()
	assert.Contains(t, body, "event: state\n")
	assert.Contains(t, body, `data: {"stage":"transcribing"}`)
}

func TestSSEWriterErrorAndDone(t *testing.T) {
	w := httptest.NewRecorder()
	sse, err := NewSSEWriter(w)
	require.NoError(t, err)

	sse.WriteError("something broke")
	sse.WriteDone()

	body := w.Body.String()
	assert.Contains(t, body, "event: error\n")
	assert.Contains(t, body, "something broke")
	assert.Contains(t, body, "event: done\n")
}
