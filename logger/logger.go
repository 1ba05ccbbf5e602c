// Package logger wraps zap for structured logging to the console and a JSON log file.
package logger

import (
	"io"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	log     *zap.Logger
	once    sync.Once
	mu      sync.Mutex
	file    *os.File
	logFile = "rawlayer.log" // Default log file
	level   = zap.NewAtomicLevelAt(zap.InfoLevel)
)

var console io.Writer = os.Stdout

// InitLogger initializes the Zap logger with structured logging.
func InitLogger() {
	once.Do(func() {
		mu.Lock()
		defer mu.Unlock()

		cores := []zapcore.Core{
			zapcore.NewCore(
				zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
				zapcore.Lock(zapcore.AddSync(console)),
				level),
		}

		if logFile != "" {
			f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
			if err == nil {
				file = f
				fileEncoder := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
				cores = append(cores, zapcore.NewCore(fileEncoder, zapcore.AddSync(f), level))
			}
		}

		log = zap.New(zapcore.NewTee(cores...), zap.AddCaller())
	})
}

// GetLogger provides access to the initialized logger.
func GetLogger() *zap.Logger {
	InitLogger()
	return log
}

// SetLogPath sets the JSON log file. An empty path disables file logging. It takes
// effect on the next initialization.
func SetLogPath(path string) {
	mu.Lock()
	defer mu.Unlock()
	logFile = path
}

// SetConsole redirects console output, for example to io.Discard in quiet mode. It
// takes effect on the next initialization.
func SetConsole(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	console = w
}

// SetLevel changes the minimum level of both outputs.
func SetLevel(name string) error {
	l, err := zapcore.ParseLevel(name)
	if err != nil {
		return err
	}
	level.SetLevel(l)
	return nil
}

// Sync ensures buffered logs are written before the application exits.
func Sync() {
	if log != nil {
		_ = log.Sync()
	}
}

// ResetLogger discards the current logger so the next call initializes a new one.
func ResetLogger() {
	Sync()
	mu.Lock()
	defer mu.Unlock()
	if file != nil {
		_ = file.Close()
		file = nil
	}
	log = nil
	once = sync.Once{}
}
