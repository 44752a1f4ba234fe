package console

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelsAndVerbose(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer
	l := New(Options{Out: &buf})

	l.Info("hello %s", "world")
	l.Success("done")
	l.Warn("careful")
	l.Error("broken")
	l.Debug("hidden")

	out := buf.String()
	assert.Contains(t, out, "[INFO] hello world\n")
	assert.Contains(t, out, "[OK] done\n")
	assert.Contains(t, out, "[WARN] careful\n")
	assert.Contains(t, out, "[ERROR] broken\n")
	assert.NotContains(t, out, "hidden")

	l.SetVerbose(true)
	l.Debug("shown")
	assert.Contains(t, buf.String(), "[DEBUG] shown")
}

func TestLogFileGetsEverything(t *testing.T) {
	color.NoColor = false
	path := filepath.Join(t.TempDir(), "logs", "locsync.log")
	var buf bytes.Buffer
	l := New(Options{Out: &buf, LogFile: path})
	l.Debug("debug line")
	l.Warn("warn line")
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, "[DEBUG] debug line")
	assert.Contains(t, text, "[WARN] warn line")
	assert.False(t, strings.Contains(text, "\x1b["), "log file must not carry colour codes")
}

func TestProgress(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{Out: &buf})
	l.Progress("fr", 1, 2)
	l.Progress("fr", 2, 2)
	l.Progress("fr", 0, 0)
	assert.Equal(t, "\r  fr: 1/2\r  fr: 2/2\n", buf.String())
}

func TestDiscard(t *testing.T) {
	l := Discard()
	l.Info("nothing")
	assert.NoError(t, l.Close())
}
