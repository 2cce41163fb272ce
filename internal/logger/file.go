package logger

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// consoleFilePermissions restricts the transcript to the daemon's user.
const consoleFilePermissions = 0o600

// NewFile creates a debug-level logger appending "time message" lines to path.
// It is used for the update console transcript, which must stay readable as
// plain text. The returned close function flushes and closes the file.
func NewFile(path string) (*zap.SugaredLogger, func() error, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, nil, fmt.Errorf("create log folder: %w", err)
	}

	file, err := os.OpenFile(filepath.Clean(path), os.O_CREATE|os.O_APPEND|os.O_WRONLY, consoleFilePermissions)
	if err != nil {
		return nil, nil, fmt.Errorf("open console log: %w", err)
	}

	//nolint:exhaustruct // Only time and message are rendered.
	encoder := zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
		TimeKey:          "time",
		MessageKey:       "message",
		LineEnding:       zapcore.DefaultLineEnding,
		EncodeTime:       zapcore.ISO8601TimeEncoder,
		ConsoleSeparator: " ",
	})

	core := zapcore.NewCore(encoder, zapcore.AddSync(file), zapcore.DebugLevel)
	l := zap.New(core).Sugar()

	closeFn := func() error {
		_ = l.Sync()

		return file.Close()
	}

	return l, closeFn, nil
}
