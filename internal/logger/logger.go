// Package logger writes the ordering backend's operational log: one
// dated file per day under the configured logs directory, mirrored to
// stdout. Webhook reconciliation and checkout failures land here, so
// every line carries the source file and line that emitted it.
package logger

import (
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const timestampLayout = "2006-01-02 15:04:05 MST"

// Config carries the file and time zone settings for SetupLogger.
type Config struct {
	LogsDirectory string
	LogFileFormat string // fmt pattern taking the date, e.g. "server_%s.log"
	TimeZone      string
}

var (
	initialized int32
	out         *log.Logger
	timeZone    *time.Location
	logFilePath string
	mu          sync.Mutex
)

// SetupLogger opens today's log file and starts mirroring to stdout.
// Setup failures are fatal: a backend that cannot log payment events
// should not take orders.
func SetupLogger(config Config) error {
	mu.Lock()
	defer mu.Unlock()

	if atomic.LoadInt32(&initialized) == 1 {
		return fmt.Errorf("logger already initialized")
	}

	if config.TimeZone == "" {
		config.TimeZone = "America/Chicago"
	}

	loc, err := time.LoadLocation(config.TimeZone)
	if err != nil {
		setupFatal("Failed to load time zone '%s': %v", config.TimeZone, err)
	}
	timeZone = loc

	if err := os.MkdirAll(config.LogsDirectory, 0775); err != nil {
		setupFatal("Failed to create logs directory '%s': %v", config.LogsDirectory, err)
	}

	logFileName := fmt.Sprintf(config.LogFileFormat, time.Now().In(loc).Format("2006-01-02"))
	if filepath.IsAbs(logFileName) {
		logFilePath = logFileName
	} else {
		logFilePath = filepath.Join(config.LogsDirectory, logFileName)
	}

	logFile, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0664)
	if err != nil {
		setupFatal("Failed to open log file '%s': %v", logFilePath, err)
	}

	out = log.New(io.MultiWriter(os.Stdout, logFile), "", log.Ldate|log.Ltime)

	atomic.StoreInt32(&initialized, 1)
	LogInfo("Logger initialized, writing to %s", logFilePath)
	return nil
}

func GetLogFilePath() string {
	return logFilePath
}

func IsInitialized() bool {
	return atomic.LoadInt32(&initialized) == 1
}

// write tags the line with the caller two frames up, which is whoever
// called the LogInfo/LogWarn/LogError wrapper.
func write(level string, message string, v ...interface{}) {
	if !IsInitialized() {
		log.Printf("[%s] %s", level, fmt.Sprintf(message, v...))
		return
	}

	_, file, line, _ := runtime.Caller(2)
	out.Println(fmt.Sprintf("[%s] %s %s:%d - %s",
		level,
		time.Now().In(timeZone).Format(timestampLayout),
		filepath.Base(file), line,
		fmt.Sprintf(message, v...)))
}

func LogInfo(message string, v ...interface{})  { write("INFO", message, v...) }
func LogWarn(message string, v ...interface{})  { write("WARN", message, v...) }
func LogError(message string, v ...interface{}) { write("ERROR", message, v...) }
func LogFatal(message string, v ...interface{}) {
	write("FATAL", message, v...)
	os.Exit(1)
}

func LogHTTPRequest(r *http.Request) {
	LogInfo("HTTP %s %s from %s", r.Method, r.URL.Path, GetClientIP(r))
}

func LogHTTPError(r *http.Request, status int, err error) {
	LogError("HTTP %d error for %s %s from %s: %v", status, r.Method, r.URL.Path, GetClientIP(r), err)
}

// GetClientIP prefers proxy headers so log lines name the parent's
// address rather than the reverse proxy.
func GetClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return strings.TrimSpace(strings.Split(forwarded, ",")[0])
	}
	if real := r.Header.Get("X-Real-IP"); real != "" {
		return real
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// setupFatal reports setup problems on stderr before the file sink exists.
func setupFatal(format string, v ...interface{}) {
	msg := fmt.Sprintf(format, v...)
	fmt.Fprintf(os.Stderr, "[FATAL] %s\n", msg)
	os.Exit(1)
}
