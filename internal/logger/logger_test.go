package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, zapcore.InfoLevel, lvl)

	lvl, err = ParseLevel(" DEBUG ")
	require.NoError(t, err)
	assert.Equal(t, zapcore.DebugLevel, lvl)

	_, err = ParseLevel("chatty")
	assert.EqualError(t, err, `invalid LOG_LEVEL: "chatty"`)
}

func TestNamedObserved(t *testing.T) {
	lggr, logs := TestObserved(t, zapcore.InfoLevel)
	w := lggr.Named("worker").With("trip", "t-1")
	assert.Equal(t, "worker", w.Name())

	w.Debugw("hidden")
	w.Infow("planned", "stops", 4)

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "planned", entries[0].Message)
	assert.Equal(t, "worker", entries[0].LoggerName)
	assert.Equal(t, "t-1", entries[0].ContextMap()["trip"])
	assert.EqualValues(t, 4, entries[0].ContextMap()["stops"])
}

func TestNew(t *testing.T) {
	_, err := New("verbose")
	require.Error(t, err)

	lggr, err := New("warn")
	require.NoError(t, err)
	lggr.Named("cli").Infof("not written at warn level")
	Nop().Errorw("dropped", "k", "v")
}
