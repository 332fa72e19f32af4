package logging

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

type recorded struct {
	level int
	line  string
}

func recordingFuncs(out *[]recorded) LogFuncs {
	return LogFuncs{
		LogLevelf: func(level int, format string, args ...interface{}) {
			*out = append(*out, recorded{level: level, line: fmt.Sprintf(format, args...)})
		},
	}
}

func TestLogger_PrefixIsPrepended(t *testing.T) {
	var out []recorded
	l := NewLogger("unit: Worker , ", recordingFuncs(&out))

	l.Infof("started pid=%d", 42)
	l.Errorf("boom")

	assert.Equal(t, []recorded{
		{LogLevelInfo, "unit: Worker , started pid=42"},
		{LogLevelError, "unit: Worker , boom"},
	}, out)
}

func TestLogger_FallsBackToPerLevelFuncs(t *testing.T) {
	var debug, warn []string
	l := NewLogger("", LogFuncs{
		Debugf: func(format string, args ...interface{}) { debug = append(debug, fmt.Sprintf(format, args...)) },
		Warnf:  func(format string, args ...interface{}) { warn = append(warn, fmt.Sprintf(format, args...)) },
	})

	l.Debugf("d%d", 1)
	l.Warnf("w")
	l.Infof("dropped, no info func")

	assert.Equal(t, []string{"d1"}, debug)
	assert.Equal(t, []string{"w"}, warn)
}

func TestWithPrefix_Chains(t *testing.T) {
	var out []recorded
	root := NewLogger("module: desk-server , ", recordingFuncs(&out))
	unit := WithPrefix(root, UnitPrefix("Ngrok"))

	unit.Warnf("slow stop")

	assert.Len(t, out, 1)
	assert.Equal(t, "module: desk-server , unit: Ngrok , slow stop", out[0].line)
	assert.Equal(t, LogLevelWarn, out[0].level)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LogLevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, LogLevelWarn, ParseLevel("warning"))
	assert.Equal(t, LogLevelError, ParseLevel(" error "))
	assert.Equal(t, LogLevelInfo, ParseLevel("whatever"))
	assert.Equal(t, "warn", LevelName(ParseLevel("warn")))
}

func TestNop_DoesNotPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		Nop().Errorf("ignored %s", "x")
	})
}
