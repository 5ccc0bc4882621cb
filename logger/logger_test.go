package logger

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestInitializeConsole(t *testing.T) {
	err := Initialize(false)
	require.NoError(t, err)
	require.NotNil(t, Logger)
	assert.False(t, JSONOutput)
}

func TestInitializeJSON(t *testing.T) {
	err := Initialize(true)
	require.NoError(t, err)
	require.NotNil(t, Logger)
	assert.True(t, JSONOutput)
}

func TestComponentLoggerNamed(t *testing.T) {
	require.NoError(t, Initialize(false))
	log := ComponentLogger("scheduling.orchestrator")
	require.NotNil(t, log)
	// Named loggers must not replace the global
	assert.NotSame(t, Logger, log)
}

func TestAbbreviateName(t *testing.T) {
	assert.Equal(t, "s.orchestrator", abbreviateName("scheduling.orchestrator"))
	assert.Equal(t, "t.ticker", abbreviateName("trigger.ticker"))
	assert.Equal(t, "server", abbreviateName("server"))
}

func TestMinimalEncoderEntry(t *testing.T) {
	enc := newMinimalEncoder()
	entry := zapcore.Entry{
		Level:      zapcore.InfoLevel,
		Time:       time.Date(2024, 6, 1, 13, 4, 35, 0, time.UTC),
		LoggerName: "scheduling.orchestrator",
		Message:    "Armed schedule",
	}
	fields := []zapcore.Field{
		zap.String(FieldScheduleID, "SCH_9f2"),
		zap.Int("triggers", 2),
	}

	buf, err := enc.EncodeEntry(entry, fields)
	require.NoError(t, err)
	out := buf.String()

	assert.Contains(t, out, "13:04:35")
	assert.Contains(t, out, "s.orchestrator")
	assert.Contains(t, out, "Armed schedule")
	assert.Contains(t, out, "SCH_9f2")
	assert.True(t, strings.HasSuffix(out, "\n"))
}

func TestSetTheme(t *testing.T) {
	t.Cleanup(func() { SetTheme("gruvbox") })

	SetTheme("everforest")
	assert.Equal(t, paletteEverforest, colors())

	// Unknown names fall back to gruvbox
	SetTheme("solarized")
	assert.Equal(t, paletteGruvbox, colors())
}

func TestMinimalEncoderWarnLevel(t *testing.T) {
	enc := newMinimalEncoder()
	entry := zapcore.Entry{
		Level:   zapcore.WarnLevel,
		Time:    time.Now(),
		Message: "ends before it starts",
	}
	buf, err := enc.EncodeEntry(entry, nil)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "WARN")
}
