// Package logging provides categorized file-based logging for buildit.
// Logs are written to <base>/logs/ with separate files per category.
// Logging is controlled by debug_mode in the manifest - when false, no
// log files are written.
package logging

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Category represents a log category/system.
type Category string

const (
	CategoryBoot      Category = "boot"      // CLI startup
	CategoryPkg       Category = "pkg"       // Package installation
	CategoryRepo      Category = "repo"      // Repository cloning
	CategoryContainer Category = "container" // Container stack and readiness
	CategoryRender    Category = "render"    // Generated artifact writes
	CategoryMCP       Category = "mcp"       // MCP config and handshake
	CategoryState     Category = "state"     // Run journal
	CategoryDoctor    Category = "doctor"    // Environment diagnosis
)

// Options controls the logging system.
type Options struct {
	DebugMode  bool
	Level      string // debug, info, warn, error
	Categories map[string]bool
}

// Logger writes to a single category file.
type Logger struct {
	category Category
	logger   *log.Logger
	file     *os.File
}

// Log levels
const (
	LevelDebug = 0
	LevelInfo  = 1
	LevelWarn  = 2
	LevelError = 3
)

var (
	loggers   = make(map[Category]*Logger)
	loggersMu sync.RWMutex
	logsDir   string
	opts      Options
	optsMu    sync.RWMutex
	logLevel  int
)

// Initialize sets up the logging directory. Should be called once at
// startup with the buildit home directory (~/.buildit). A no-op when
// debug mode is off.
func Initialize(baseDir string, options Options) error {
	if baseDir == "" {
		return fmt.Errorf("base directory required")
	}

	optsMu.Lock()
	opts = options
	logLevel = parseLevel(options.Level)
	optsMu.Unlock()

	if !options.DebugMode {
		return nil
	}

	logsDir = filepath.Join(baseDir, "logs")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	boot := Get(CategoryBoot)
	boot.Info("=== buildit logging initialized ===")
	boot.Info("Logs directory: %s", logsDir)
	boot.Info("Log level: %s", options.Level)

	return nil
}

// currentLevel reads the configured level under the options lock so
// log calls racing a re-Initialize stay clean.
func currentLevel() int {
	optsMu.RLock()
	defer optsMu.RUnlock()
	return logLevel
}

func parseLevel(level string) int {
	switch level {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// IsCategoryEnabled returns whether a category is enabled.
func IsCategoryEnabled(category Category) bool {
	optsMu.RLock()
	defer optsMu.RUnlock()

	if !opts.DebugMode {
		return false
	}
	if opts.Categories == nil {
		return true
	}
	enabled, exists := opts.Categories[string(category)]
	if !exists {
		return true
	}
	return enabled
}

// Get returns (or creates) a logger for the given category.
// Returns a no-op logger if debug mode or the category is disabled.
func Get(category Category) *Logger {
	if !IsCategoryEnabled(category) || logsDir == "" {
		return &Logger{category: category}
	}

	loggersMu.RLock()
	if l, ok := loggers[category]; ok {
		loggersMu.RUnlock()
		return l
	}
	loggersMu.RUnlock()

	loggersMu.Lock()
	defer loggersMu.Unlock()

	if l, ok := loggers[category]; ok {
		return l
	}

	// Date prefix keeps rotation a matter of deleting old files.
	date := time.Now().Format("2006-01-02")
	logPath := filepath.Join(logsDir, fmt.Sprintf("%s_%s.log", date, category))

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
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

// Debug logs a debug message.
func (l *Logger) Debug(format string, args ...interface{}) {
	if l.logger == nil || currentLevel() > LevelDebug {
		return
	}
	l.logger.Printf("[DEBUG] %s", fmt.Sprintf(format, args...))
}

// Info logs an informational message.
func (l *Logger) Info(format string, args ...interface{}) {
	if l.logger == nil || currentLevel() > LevelInfo {
		return
	}
	l.logger.Printf("[INFO] %s", fmt.Sprintf(format, args...))
}

// Warn logs a warning.
func (l *Logger) Warn(format string, args ...interface{}) {
	if l.logger == nil || currentLevel() > LevelWarn {
		return
	}
	l.logger.Printf("[WARN] %s", fmt.Sprintf(format, args...))
}

// Error logs an error.
func (l *Logger) Error(format string, args ...interface{}) {
	if l.logger == nil {
		return
	}
	l.logger.Printf("[ERROR] %s", fmt.Sprintf(format, args...))
}

// Close flushes and closes all category files.
func Close() {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	for cat, l := range loggers {
		if l.file != nil {
			_ = l.file.Close()
		}
		delete(loggers, cat)
	}
	logsDir = ""
}
