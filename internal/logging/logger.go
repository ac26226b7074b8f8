// Package logging provides categorized file-based logging for nROS processes.
// Each category writes to its own file under the nROS log directory:
// /var/log/nros when running as root, ~/.nros/log otherwise.
package logging

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Category represents a log category/subsystem.
type Category string

const (
	CategoryBus     Category = "bus"     // Bus daemon and connections
	CategoryNode    Category = "node"    // Node lifecycle
	CategoryTopic   Category = "topic"   // Topic publish/subscribe
	CategoryService Category = "service" // Service calls
	CategoryRecord  Category = "record"  // Bag recording and playback
	CategoryGateway Category = "gateway" // REST gateway
	CategoryDemo    Category = "demo"    // Demo applications
)

// Log levels.
const (
	LevelDebug = 0
	LevelInfo  = 1
	LevelWarn  = 2
	LevelError = 3
)

// Config controls which categories log and at which level.
type Config struct {
	Enabled    bool
	Level      string          // debug, info, warn, error
	Dir        string          // override log directory (optional)
	Categories map[string]bool // nil means all categories enabled
}

// Logger wraps a standard logger with category and file output.
type Logger struct {
	category Category
	logger   *log.Logger
	file     *os.File
}

var (
	loggers   = make(map[Category]*Logger)
	loggersMu sync.RWMutex
	logsDir   string
	config    Config
	configMu  sync.RWMutex
	logLevel  int
)

// DefaultDir returns the log directory: /var/log/nros for root,
// ~/.nros/log for everybody else.
func DefaultDir() string {
	if os.Geteuid() == 0 {
		return "/var/log/nros"
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "nros-log")
	}
	return filepath.Join(home, ".nros", "log")
}

// Initialize sets up the logging directory and applies the config.
// Should be called once at process startup.
func Initialize(cfg Config) error {
	configMu.Lock()
	config = cfg
	switch cfg.Level {
	case "debug":
		logLevel = LevelDebug
	case "warn", "warning":
		logLevel = LevelWarn
	case "error":
		logLevel = LevelError
	default:
		logLevel = LevelInfo
	}
	configMu.Unlock()

	if !cfg.Enabled {
		return nil // Silent no-op when logging is off
	}

	dir := cfg.Dir
	if dir == "" {
		dir = DefaultDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	loggersMu.Lock()
	logsDir = dir
	loggersMu.Unlock()
	return nil
}

// IsCategoryEnabled reports whether a category is enabled by the current config.
func IsCategoryEnabled(category Category) bool {
	configMu.RLock()
	defer configMu.RUnlock()

	if !config.Enabled {
		return false
	}
	if config.Categories == nil {
		return true
	}
	enabled, exists := config.Categories[string(category)]
	if !exists {
		return true // Enable by default if not specified
	}
	return enabled
}

// Get returns (or creates) a logger for the given category.
// Returns a no-op logger if logging or the category is disabled.
func Get(category Category) *Logger {
	if !IsCategoryEnabled(category) {
		return &Logger{category: category}
	}

	loggersMu.RLock()
	if l, ok := loggers[category]; ok {
		loggersMu.RUnlock()
		return l
	}
	dir := logsDir
	loggersMu.RUnlock()

	if dir == "" {
		return &Logger{category: category}
	}

	loggersMu.Lock()
	defer loggersMu.Unlock()

	// Double-check after acquiring write lock
	if l, ok := loggers[category]; ok {
		return l
	}

	// Date prefix keeps rotation a matter of deleting old files
	date := time.Now().Format("2006-01-02")
	logPath := filepath.Join(dir, fmt.Sprintf("%s_%s.log", date, category))

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[logging] Warning: could not open log file %s: %v\n", logPath, err)
		return &Logger{category: category}
	}

	l := &Logger{
		category: category,
		file:     file,
		logger:   log.New(file, "", log.Ldate|log.Ltime|log.Lmicroseconds),
	}
	loggers[category] = l
	return l
}

// Debug logs a debug message (only if level <= debug).
func (l *Logger) Debug(format string, args ...interface{}) {
	if l.logger == nil || logLevel > LevelDebug {
		return
	}
	l.logger.Printf("[DEBUG] %s", fmt.Sprintf(format, args...))
}

// Info logs an informational message (only if level <= info).
func (l *Logger) Info(format string, args ...interface{}) {
	if l.logger == nil || logLevel > LevelInfo {
		return
	}
	l.logger.Printf("[INFO] %s", fmt.Sprintf(format, args...))
}

// Warn logs a warning message (only if level <= warn).
func (l *Logger) Warn(format string, args ...interface{}) {
	if l.logger == nil || logLevel > LevelWarn {
		return
	}
	l.logger.Printf("[WARN] %s", fmt.Sprintf(format, args...))
}

// Error logs an error message (always logged if logger exists).
func (l *Logger) Error(format string, args ...interface{}) {
	if l.logger == nil {
		return
	}
	l.logger.Printf("[ERROR] %s", fmt.Sprintf(format, args...))
}

// Banner writes a centered banner line, framing node start/stop in the log.
func (l *Logger) Banner(text string) {
	if l.logger == nil {
		return
	}
	const width = 60
	pad := width - len(text)
	if pad < 2 {
		l.logger.Print(text)
		return
	}
	left := pad / 2
	right := pad - left
	l.logger.Printf("%s%s%s", dashes(left), text, dashes(right))
}

func dashes(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = '-'
	}
	return string(b)
}

// CloseAll closes all open log files (call at shutdown).
func CloseAll() {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	for _, l := range loggers {
		if l.file != nil {
			l.file.Close()
		}
	}
	loggers = make(map[Category]*Logger)
	logsDir = ""
}

// Convenience functions for quick logging without getting a logger first.
// These are no-ops if the category is disabled.

// Bus logs to the bus category.
func Bus(format string, args ...interface{}) {
	Get(CategoryBus).Info(format, args...)
}

// BusDebug logs debug to the bus category.
func BusDebug(format string, args ...interface{}) {
	Get(CategoryBus).Debug(format, args...)
}

// Node logs to the node category.
func Node(format string, args ...interface{}) {
	Get(CategoryNode).Info(format, args...)
}

// NodeDebug logs debug to the node category.
func NodeDebug(format string, args ...interface{}) {
	Get(CategoryNode).Debug(format, args...)
}

// Topic logs to the topic category.
func Topic(format string, args ...interface{}) {
	Get(CategoryTopic).Info(format, args...)
}

// TopicDebug logs debug to the topic category.
func TopicDebug(format string, args ...interface{}) {
	Get(CategoryTopic).Debug(format, args...)
}

// Service logs to the service category.
func Service(format string, args ...interface{}) {
	Get(CategoryService).Info(format, args...)
}

// Record logs to the record category.
func Record(format string, args ...interface{}) {
	Get(CategoryRecord).Info(format, args...)
}

// Gateway logs to the gateway category.
func Gateway(format string, args ...interface{}) {
	Get(CategoryGateway).Info(format, args...)
}

// Demo logs to the demo category.
func Demo(format string, args ...interface{}) {
	Get(CategoryDemo).Info(format, args...)
}

// Timer helps measure operation duration.
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation.
func StartTimer(category Category, operation string) *Timer {
	return &Timer{category: category, op: operation, start: time.Now()}
}

// Stop ends the timer and logs the duration.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}
