// Package console prints leveled status lines to the terminal and mirrors
// them, uncoloured and timestamped, into a rotating log file.
package console

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"

	"github.com/fatih/color"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Level tags a line.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelOK
	LevelWarn
	LevelError
)

var levels = map[Level]struct {
	tag   string
	paint *color.Color
}{
	LevelDebug: {"[DEBUG]", color.New(color.FgHiBlack)},
	LevelInfo:  {"[INFO]", color.New(color.FgBlue)},
	LevelOK:    {"[OK]", color.New(color.FgGreen)},
	LevelWarn:  {"[WARN]", color.New(color.FgYellow, color.Bold)},
	LevelError: {"[ERROR]", color.New(color.FgRed)},
}

// Logger writes to the terminal and optionally to a log file. It is safe
// for concurrent use.
type Logger struct {
	mu      sync.Mutex
	out     io.Writer
	file    *lumberjack.Logger
	fileLog *log.Logger
	verbose bool
}

// Options configures New.
type Options struct {
	// Out defaults to stderr.
	Out io.Writer
	// LogFile, when set, receives every line including debug lines.
	LogFile string
	Verbose bool
}

// New returns a Logger.
func New(opts Options) *Logger {
	l := &Logger{out: opts.Out, verbose: opts.Verbose}
	if l.out == nil {
		l.out = color.Error
	}
	if opts.LogFile != "" {
		l.file = &lumberjack.Logger{
			Filename:   opts.LogFile,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		}
		l.fileLog = log.New(l.file, "", log.LstdFlags)
	}
	return l
}

// Discard returns a Logger that prints nothing.
func Discard() *Logger {
	return &Logger{out: io.Discard}
}

// Verbose reports whether debug lines reach the terminal.
func (l *Logger) Verbose() bool {
	return l.verbose
}

// SetVerbose toggles debug output on the terminal.
func (l *Logger) SetVerbose(v bool) {
	l.mu.Lock()
	l.verbose = v
	l.mu.Unlock()
}

// Close flushes and closes the log file.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

func (l *Logger) write(level Level, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	lv := levels[level]

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.fileLog != nil {
		l.fileLog.Printf("%s %s", lv.tag, msg)
	}
	if level == LevelDebug && !l.verbose {
		return
	}
	fmt.Fprintf(l.out, "%s %s\n", lv.paint.Sprint(lv.tag), msg)
}

func (l *Logger) Debug(format string, args ...any)   { l.write(LevelDebug, format, args...) }
func (l *Logger) Info(format string, args ...any)    { l.write(LevelInfo, format, args...) }
func (l *Logger) Success(format string, args ...any) { l.write(LevelOK, format, args...) }
func (l *Logger) Warn(format string, args ...any)    { l.write(LevelWarn, format, args...) }
func (l *Logger) Error(format string, args ...any)   { l.write(LevelError, format, args...) }

// Progress prints "  lang: done/total" on the terminal, overwriting the
// line while a run is in progress. It is never written to the log file.
func (l *Logger) Progress(label string, done, total int) {
	if total <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	end := ""
	if done >= total {
		end = "\n"
	}
	fmt.Fprintf(l.out, "\r  %s: %d/%d%s", label, done, total, end)
}

// IsTerminal reports whether stderr is an interactive terminal, which is
// when progress lines make sense.
func IsTerminal() bool {
	return !color.NoColor && os.Getenv("TERM") != "dumb"
}
