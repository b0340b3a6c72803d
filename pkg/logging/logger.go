package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Level is the minimum severity a logger writes.
type Level int32

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the tag written into each entry.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	default:
		return "ERROR"
	}
}

// ParseVerbosity maps a configured verbosity (quiet, normal, verbose, debug)
// to a level.
func ParseVerbosity(verbosity string) (Level, error) {
	switch strings.ToLower(verbosity) {
	case "quiet":
		return LevelWarn, nil
	case "", "normal":
		return LevelInfo, nil
	case "verbose", "debug":
		return LevelDebug, nil
	default:
		return LevelInfo, fmt.Errorf("invalid verbosity: %s (must be 'quiet', 'normal', 'verbose', or 'debug')", verbosity)
	}
}

// Logger writes component-tagged entries for one dexprobe run.
// Loggers created by NewLogger share the run's log file in
// ~/.dexprobe/logs/<run-id>-dexprobe.log.
type Logger struct {
	runID     string
	component string
	file      *os.File
	logger    *log.Logger
	mu        *sync.Mutex
	logPath   string
	closeOnce sync.Once
}

var (
	// Run ID shared by every logger in this process
	runID     string
	runIDOnce sync.Once

	// logDir is where log files are written; empty until initialized
	logDir    string
	logDirMu  sync.Mutex
	initOnce  sync.Once
	initErr   error
	threshold atomic.Int32
	mirror    atomic.Value // mirrorWriter
)

type mirrorWriter struct {
	w io.Writer
}

func getRunID() string {
	runIDOnce.Do(func() {
		runID = uuid.New().String()
	})
	return runID
}

// SetLevel sets the process-wide minimum level.
func SetLevel(level Level) {
	threshold.Store(int32(level))
}

// CurrentLevel returns the process-wide minimum level.
func CurrentLevel() Level {
	return Level(threshold.Load())
}

// SetMirror copies every written entry to w (typically stderr). A nil writer
// stops mirroring.
func SetMirror(w io.Writer) {
	mirror.Store(mirrorWriter{w: w})
}

// SetLogDirectory overrides the log directory. It must be called before the
// first NewLogger.
func SetLogDirectory(dir string) {
	logDirMu.Lock()
	defer logDirMu.Unlock()
	logDir = dir
}

func initLogDirectory() error {
	initOnce.Do(func() {
		logDirMu.Lock()
		defer logDirMu.Unlock()

		if logDir == "" {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				initErr = fmt.Errorf("failed to get home directory: %w", err)
				return
			}
			logDir = filepath.Join(homeDir, ".dexprobe", "logs")
		}
		if err := os.MkdirAll(logDir, 0750); err != nil {
			initErr = fmt.Errorf("failed to create log directory: %w", err)
		}
	})
	return initErr
}

// NewLogger creates a logger for a component writing to the run's log file.
//
// If the log file cannot be opened it returns a logger writing to stderr along
// with the error, so callers can warn and carry on.
func NewLogger(component string) (*Logger, error) {
	if err := initLogDirectory(); err != nil {
		return newFallbackLogger(component, err), err
	}

	id := getRunID()
	logPath := filepath.Join(logDir, fmt.Sprintf("%s-dexprobe.log", id))

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		err = fmt.Errorf("failed to open log file: %w", err)
		return newFallbackLogger(component, err), err
	}

	return &Logger{
		runID:     id,
		component: component,
		file:      file,
		logger:    log.New(file, "", 0),
		mu:        &sync.Mutex{},
		logPath:   logPath,
	}, nil
}

// NewWriterLogger creates a logger that writes to w instead of the run file.
func NewWriterLogger(component string, w io.Writer) *Logger {
	return &Logger{
		runID:     getRunID(),
		component: component,
		logger:    log.New(w, "", 0),
		mu:        &sync.Mutex{},
	}
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	return NewWriterLogger("discard", io.Discard)
}

func newFallbackLogger(component string, err error) *Logger {
	l := NewWriterLogger(component, os.Stderr)
	l.logger.Printf("WARNING: Failed to initialize file logging: %v", err)
	l.logger.Printf("Falling back to stderr logging")
	return l
}

// With returns a logger for another component sharing this logger's output.
// Closing the derived logger does not close the shared file.
func (l *Logger) With(component string) *Logger {
	return &Logger{
		runID:     l.runID,
		component: component,
		logger:    l.logger,
		mu:        l.mu,
		logPath:   l.logPath,
	}
}

func (l *Logger) formatLogEntry(level Level, message string) string {
	timestamp := time.Now().Format("2006-01-02 15:04:05.000")
	return fmt.Sprintf("[%s] [%s] [%s] %s", timestamp, l.component, level, message)
}

func (l *Logger) write(level Level, format string, v ...interface{}) {
	if level < CurrentLevel() {
		return
	}

	entry := l.formatLogEntry(level, fmt.Sprintf(format, v...))

	l.mu.Lock()
	defer l.mu.Unlock()
	l.logger.Println(entry)
	if m, ok := mirror.Load().(mirrorWriter); ok && m.w != nil {
		fmt.Fprintln(m.w, entry)
	}
}

// Printf logs at info level.
func (l *Logger) Printf(format string, v ...interface{}) {
	l.write(LevelInfo, format, v...)
}

// Debugf logs a debug-level message
func (l *Logger) Debugf(format string, v ...interface{}) {
	l.write(LevelDebug, format, v...)
}

// Infof logs an info-level message
func (l *Logger) Infof(format string, v ...interface{}) {
	l.write(LevelInfo, format, v...)
}

// Warnf logs a warning-level message
func (l *Logger) Warnf(format string, v ...interface{}) {
	l.write(LevelWarn, format, v...)
}

// Errorf logs an error-level message
func (l *Logger) Errorf(format string, v ...interface{}) {
	l.write(LevelError, format, v...)
}

// Component returns the component tag.
func (l *Logger) Component() string {
	return l.component
}

// RunID returns the run ID shared by all loggers in the process.
func (l *Logger) RunID() string {
	return l.runID
}

// LogPath returns the path to the log file, or "" for writer loggers.
func (l *Logger) LogPath() string {
	return l.logPath
}

// Close closes the log file. Safe to call multiple times.
func (l *Logger) Close() error {
	var err error
	l.closeOnce.Do(func() {
		if l.file != nil {
			err = l.file.Close()
		}
	})
	return err
}

// GetRunID returns the current run ID.
func GetRunID() string {
	return getRunID()
}

// GetLogDirectory returns the directory where logs are stored.
func GetLogDirectory() (string, error) {
	if err := initLogDirectory(); err != nil {
		return "", err
	}
	logDirMu.Lock()
	defer logDirMu.Unlock()
	return logDir, nil
}

func init() {
	SetLevel(LevelInfo)
	SetMirror(nil)
}
