package tracing

import (
	"context"
	"errors"
	"os"
	"path"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracingFile(t *testing.T) {
	fname := path.Join(t.TempDir(), "span_test.txt")
	require.NoError(t, Init("cascade", "0.0.1", fname))

	_, span := StartSpan(context.Background(), "dispatch job-1", KindClient)
	span.WithAttributes(map[string]string{"job.id": "job-1"})
	span.AddEvent("executing")
	EndSpan(span, errors.New("node down"))

	data, err := os.ReadFile(fname)
	require.NoError(t, err)
	assert.NotEmpty(t, data)
	assert.Contains(t, string(data), "job-1")
}

func TestEndSpan_Nil(t *testing.T) {
	EndSpan(nil, nil)
	var span *Span
	assert.Nil(t, span.WithAttributes(map[string]string{"a": "b"}))
}
