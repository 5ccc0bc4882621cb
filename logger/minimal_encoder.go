package logger

import (
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

const (
	colorReset = "\x1b[0m"
	colorBold  = "\x1b[1m"
)

// palette holds the ANSI colors for one console theme.
type palette struct {
	fg     string // message text
	time   string // timestamps
	comp   string // components and glyphs
	warn   string // warnings
	id     string // IDs
	num    string // numbers
	err    string // errors
	warnBg string
	errBg  string
}

// Gruvbox Dark (warm, muted, easy on eyes)
var paletteGruvbox = palette{
	fg:     "\x1b[38;5;223m",
	time:   "\x1b[38;5;108m",
	comp:   "\x1b[38;5;208m",
	warn:   "\x1b[38;5;214m",
	id:     "\x1b[38;5;109m",
	num:    "\x1b[38;5;175m",
	err:    "\x1b[38;5;167m",
	warnBg: "\x1b[48;5;58m",
	errBg:  "\x1b[48;5;88m",
}

// Everforest Dark (natural forest greens)
var paletteEverforest = palette{
	fg:     "\x1b[38;5;252m",
	time:   "\x1b[38;5;150m",
	comp:   "\x1b[38;5;215m",
	warn:   "\x1b[38;5;179m",
	id:     "\x1b[38;5;109m",
	num:    "\x1b[38;5;139m",
	err:    "\x1b[38;5;168m",
	warnBg: "\x1b[48;5;58m",
	errBg:  "\x1b[48;5;88m",
}

var (
	themeMu      sync.RWMutex
	currentTheme = paletteGruvbox
)

// SetTheme selects the console color scheme. Unknown names fall back to
// gruvbox. Safe to call while the logger is in use; the watcher applies
// theme changes from config reloads.
func SetTheme(name string) {
	themeMu.Lock()
	defer themeMu.Unlock()
	switch name {
	case "everforest":
		currentTheme = paletteEverforest
	default:
		currentTheme = paletteGruvbox
	}
}

func colors() palette {
	themeMu.RLock()
	defer themeMu.RUnlock()
	return currentTheme
}

// minimalEncoder implements a calm, compact console encoder.
// Format: "13:04:35  s.orchestrator  Armed schedule  schedule_id=SCH_9f2"
type minimalEncoder struct {
	zapcore.Encoder // Embed a base encoder for field serialization
	buf             *buffer.Buffer
}

func newMinimalEncoder() *minimalEncoder {
	baseEncoder := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	return &minimalEncoder{
		Encoder: baseEncoder,
		buf:     buffer.NewPool().Get(),
	}
}

func (enc *minimalEncoder) Clone() zapcore.Encoder {
	return &minimalEncoder{
		Encoder: enc.Encoder.Clone(),
		buf:     buffer.NewPool().Get(),
	}
}

func (enc *minimalEncoder) EncodeEntry(ent zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	c := colors()
	final := buffer.NewPool().Get()

	final.AppendString(c.time)
	final.AppendString(ent.Time.Format("15:04:05"))
	final.AppendString(colorReset)

	// Level: only show for WARN/ERROR with bold + background
	if ent.Level != zapcore.InfoLevel {
		final.AppendString("  ")
		final.AppendString(levelColorString(c, ent.Level))
	}

	// Subsystem glyph, if the caller attached one
	if glyph := fieldValue(fields, FieldSymbol); glyph != "" {
		final.AppendString("  ")
		final.AppendString(c.comp)
		final.AppendString(glyph)
		final.AppendString(colorReset)
	}

	// Component name, abbreviated for visual grouping
	if ent.LoggerName != "" {
		final.AppendString("  ")
		final.AppendString(c.comp)
		final.AppendString(abbreviateName(ent.LoggerName))
		final.AppendString(colorReset)
	}

	final.AppendString("  ")
	final.AppendString(c.fg)
	final.AppendString(ent.Message)
	final.AppendString(colorReset)

	if rendered := renderFields(c, fields); rendered != "" {
		final.AppendString("  ")
		final.AppendString(rendered)
	}

	final.AppendString("\n")
	return final, nil
}

// levelColorString returns bold + colored + background for WARN/ERROR
func levelColorString(c palette, level zapcore.Level) string {
	switch level {
	case zapcore.WarnLevel:
		return colorBold + c.warnBg + c.warn + "WARN" + colorReset
	case zapcore.ErrorLevel:
		return colorBold + c.errBg + c.err + "ERROR" + colorReset
	case zapcore.DPanicLevel, zapcore.PanicLevel, zapcore.FatalLevel:
		return colorBold + c.errBg + c.err + level.CapitalString() + colorReset
	default:
		return ""
	}
}

// abbreviateName shortens component names: scheduling.orchestrator -> s.orchestrator
func abbreviateName(name string) string {
	parts := strings.Split(name, ".")
	if len(parts) > 1 {
		return string(parts[0][0]) + "." + strings.Join(parts[1:], ".")
	}
	return name
}

// fieldValue extracts the string value of a named field, handling the
// common zap field representations.
func fieldValue(fields []zapcore.Field, key string) string {
	for _, field := range fields {
		if field.Key != key {
			continue
		}
		switch {
		case field.Type == zapcore.StringType:
			return field.String
		case field.Integer != 0:
			return fmt.Sprintf("%d", field.Integer)
		case field.Interface != nil:
			return fmt.Sprintf("%v", field.Interface)
		}
	}
	return ""
}

// renderFields prints structured fields as key=value pairs, with IDs in
// the ID color and numbers in the number color. The symbol field is
// consumed by the prefix.
func renderFields(c palette, fields []zapcore.Field) string {
	var pairs []string
	for _, field := range fields {
		if field.Key == FieldSymbol {
			continue
		}

		var val, color string
		switch field.Type {
		case zapcore.StringType:
			val = field.String
			color = c.id
		case zapcore.Int64Type, zapcore.Int32Type, zapcore.Int16Type, zapcore.Int8Type,
			zapcore.Uint64Type, zapcore.Uint32Type, zapcore.Uint16Type, zapcore.Uint8Type:
			val = fmt.Sprintf("%d", field.Integer)
			color = c.num
		case zapcore.DurationType:
			val = fmt.Sprintf("%dms", field.Integer/1e6)
			color = c.num
		case zapcore.ErrorType:
			if err, ok := field.Interface.(error); ok {
				val = err.Error()
			}
			color = c.err
		default:
			if field.Interface != nil {
				val = fmt.Sprintf("%v", field.Interface)
			}
			color = c.fg
		}

		if val == "" {
			continue
		}
		pairs = append(pairs, c.fg+field.Key+"="+colorReset+color+val+colorReset)
	}
	return strings.Join(pairs, " ")
}
