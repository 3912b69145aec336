package tracer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/icarus-itcs/lazyedge/internal/config"
)

func TestSetupDisabled(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.TracerConfig{Enabled: false})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestSetupNoopExporter(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.TracerConfig{Enabled: true, Exporter: "noop"})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestSetupStdout(t *testing.T) {
	out := filepath.Join(t.TempDir(), "traces", "traces.log")
	shutdown, err := Setup(context.Background(), config.TracerConfig{Enabled: true, Exporter: "stdout", Output: out})
	require.NoError(t, err)

	_, span := StartSpan(context.Background(), "status.Refresh")
	span.End()
	require.NoError(t, shutdown(context.Background()))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), "status.Refresh")

	// reset for other tests
	_, _ = Setup(context.Background(), config.TracerConfig{})
}

func TestSetupUnsupported(t *testing.T) {
	_, err := Setup(context.Background(), config.TracerConfig{Enabled: true, Exporter: "zipkin"})
	assert.Error(t, err)
}

func TestSpanHelpers(t *testing.T) {
	_, _ = Setup(context.Background(), config.TracerConfig{})

	ctx, span := StartSpan(context.Background(), "test.op")
	require.NotNil(t, ctx)
	span.SetAttributes(StringAttr("k", "v"), IntAttr("n", 1), BoolAttr("b", true))
	RecordError(span, errors.New("boom"))
	SetOK(span)
	span.End()
}
