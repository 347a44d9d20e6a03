package logger

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]LogLevel{
		"debug":   DEBUG,
		"INFO":    INFO,
		"":        INFO,
		"warn":    WARNING,
		"warning": WARNING,
		"error":   ERROR,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetLevel(INFO)

	l := GetLogger("test")
	assert.Same(t, l, GetLogger("test"))

	SetLevel(WARNING)
	l.Infof("hidden %d", 1)
	l.Warningf("shown %d", 2)

	out := buf.String()
	assert.NotContains(t, out, "hidden 1")
	assert.Contains(t, out, "shown 2")
	assert.Contains(t, out, "test")

	SetLevel(DEBUG)
	l.Debugf("debug line")
	assert.Contains(t, buf.String(), "debug line")
}

func TestPanicf(t *testing.T) {
	SetOutput(&bytes.Buffer{})
	assert.PanicsWithValue(t, "boom 7", func() {
		GetLogger("panic").Panicf("boom %d", 7)
	})
}
