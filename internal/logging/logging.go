// Package logging builds the zap loggers used by segdict.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type FileMode string

const (
	// FileModeAppend will append to existing log files between restarts.
	// This is the default option.
	FileModeAppend FileMode = "append"
	// FileModeTruncate will truncate existing log files on start.
	FileModeTruncate FileMode = "truncate"
	// FileModeRotate will enable log rotation for log files.
	FileModeRotate FileMode = "rotate"
)

func (m *FileMode) Set(s string) error {
	switch FileMode(s) {
	case FileModeAppend, "":
		*m = FileModeAppend
	case FileModeTruncate:
		*m = FileModeTruncate
	case FileModeRotate:
		*m = FileModeRotate
	default:
		return fmt.Errorf("invalid log file mode: %s", s)
	}
	return nil
}

func (m FileMode) String() string {
	return string(m)
}

// Config describes where and how to log.
type Config struct {
	// Path is a file path, or one of stdout, stderr, /dev/null.
	Path string `json:"path" yaml:"path"`
	// If Path is a file, Mode will determine how the log file is managed.
	Mode  FileMode      `json:"mode,omitempty" yaml:"mode,omitempty"`
	Level zapcore.Level `json:"level" yaml:"level"`
	// Format is json or console.
	Format string `json:"format" yaml:"format"`
}

// DefaultConfig logs info and above as JSON to stderr.
func DefaultConfig() Config {
	return Config{Path: "stderr", Mode: FileModeAppend, Level: zapcore.InfoLevel, Format: "json"}
}

// New builds a logger from conf.
func New(conf Config) (*zap.Logger, error) {
	core, err := NewCore(conf)
	if err != nil {
		return nil, err
	}
	return zap.New(core, zap.ErrorOutput(zapcore.Lock(os.Stderr))), nil
}

func NewCore(conf Config) (zapcore.Core, error) {
	enc, err := encoder(conf.Format)
	if err != nil {
		return nil, err
	}
	path := conf.Path
	if path == "" {
		path = "stderr"
	}
	w, err := OpenFile(path, conf.Mode)
	if err != nil {
		return nil, err
	}
	return zapcore.NewCore(enc, w, conf.Level), nil
}

func encoder(format string) (zapcore.Encoder, error) {
	conf := zap.NewProductionEncoderConfig()
	conf.CallerKey = ""
	conf.EncodeTime = zapcore.ISO8601TimeEncoder
	switch format {
	case "", "json":
		return zapcore.NewJSONEncoder(conf), nil
	case "console":
		conf.EncodeLevel = zapcore.CapitalLevelEncoder
		return zapcore.NewConsoleEncoder(conf), nil
	default:
		return nil, fmt.Errorf("invalid log format: %s (must be json or console)", format)
	}
}

func OpenFile(path string, mode FileMode) (zapcore.WriteSyncer, error) {
	switch path {
	case "stdout":
		return zapcore.Lock(os.Stdout), nil
	case "stderr":
		return zapcore.Lock(os.Stderr), nil
	case "/dev/null":
		return zapcore.AddSync(io.Discard), nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	var f *os.File
	var err error
	switch mode {
	case FileModeRotate:
		// lumberjack.Logger is already safe for concurrent use.
		return zapcore.AddSync(&lumberjack.Logger{
			Filename:   path,
			MaxSize:    5, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		}), nil
	case FileModeTruncate:
		f, err = os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0644)
	default: // FileModeAppend
		f, err = os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0644)
	}
	if err != nil {
		return nil, err
	}
	return zapcore.Lock(f), nil
}
