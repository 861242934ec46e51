package logging

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// NewLogger builds the rotating global logger under the data directory.
func NewLogger(dataDir string) (*zap.Logger, error) {
	return newFileLogger(dataDir, "webmon.log")
}

// NewJobLogger builds a job's operational logger. It writes to the same
// per-job log file the detached process redirects its stdout/stderr to,
// so panics and structured events end up in one place.
func NewJobLogger(dataDir, jobID string) (*zap.Logger, error) {
	return newFileLogger(dataDir, jobID+".log")
}

func newFileLogger(dir, name string) (*zap.Logger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	w := zapcore.AddSync(&lumberjack.Logger{
		Filename:   filepath.Join(dir, name),
		MaxSize:    10, // MB
		MaxBackups: 5,
		MaxAge:     14, // days
		Compress:   true,
	})
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "ts"
	core := zapcore.NewCore(zapcore.NewJSONEncoder(cfg), w, zap.InfoLevel)
	return zap.New(core), nil
}
