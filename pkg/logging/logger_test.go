package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNameToLevelRoundTrip(t *testing.T) {
	for level, name := range levelNames {
		resolved, ok := NameToLevel(name)
		assert.True(t, ok, name)
		assert.Equal(t, level, resolved, name)
		assert.Equal(t, name, level.String())
	}

	resolved, ok := NameToLevel("bogus")
	assert.False(t, ok)
	assert.Equal(t, LevelDisabled, resolved)
	assert.Equal(t, "unknown", Level(99).String())
}

func TestSubloggerPrefixesNest(t *testing.T) {
	root := New(LevelDebug)
	archive := root.Sublogger("archive")
	compress := archive.Sublogger("compress")

	assert.Equal(t, "archive", archive.prefix)
	assert.Equal(t, "archive.compress", compress.prefix)
}

func TestNilLoggerIsSafe(t *testing.T) {
	var l *Logger
	assert.NotPanics(t, func() {
		l.Info("message")
		l.Infof("formatted %d", 1)
		l.Debug("message")
		l.Warnf("warning %d", 1)
		_ = l.Sublogger("child")
		_ = l.Writer()
	})
}

func TestLineWriterBuffersPartialLines(t *testing.T) {
	var lines []string
	w := &lineWriter{log: func(v ...any) {
		lines = append(lines, v[0].(string))
	}}

	n, err := w.Write([]byte("first line\nsecond"))
	assert.NoError(t, err)
	assert.Equal(t, len("first line\nsecond"), n)
	assert.Equal(t, []string{"first line"}, lines)

	_, err = w.Write([]byte(" line\n"))
	assert.NoError(t, err)
	assert.Equal(t, []string{"first line", "second line"}, lines)
}
