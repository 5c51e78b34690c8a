package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
)

var (
	mu sync.RWMutex

	std *log.Logger

	DebugEnabled = false

	logFile *os.File
)

// InitLogging sets up logging to logPath. Debug lines are only written when debugMode is set.
// An empty logPath keeps logging disabled.
func InitLogging(debugMode bool, logPath string) error {
	mu.Lock()
	defer mu.Unlock()

	DebugEnabled = debugMode

	if logPath == "" {
		return nil
	}

	err := os.MkdirAll(filepath.Dir(logPath), 0o755)
	if err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	logFile = f
	std = log.New(f, "", log.Ldate|log.Ltime|log.Lshortfile)

	return nil
}

// SetOutput redirects logging to w, mostly useful for tests and foreground runs.
func SetOutput(w io.Writer, debugMode bool) {
	mu.Lock()
	defer mu.Unlock()

	DebugEnabled = debugMode
	std = log.New(w, "", log.Ldate|log.Ltime|log.Lshortfile)
}

// Close closes the log file if open.
func Close() {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		logFile.Close()
		logFile = nil
	}

	std = nil
}

func output(level, format string, v ...interface{}) {
	mu.RLock()
	l := std
	mu.RUnlock()

	if l == nil {
		return
	}

	_ = l.Output(3, fmt.Sprintf(level+format, v...))
}

func Infof(format string, v ...interface{}) {
	output("[INFO] ", format, v...)
}

// Errorf logs an error message.
func Errorf(format string, v ...interface{}) {
	output("[ERROR] ", format, v...)
}

func Debugf(format string, v ...interface{}) {
	if !DebugEnabled {
		return
	}

	output("[DEBUG] ", format, v...)
}

func Warnf(format string, v ...interface{}) {
	output("[WARNING] ", format, v...)
}
