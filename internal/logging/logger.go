package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"medbook/internal/config"

	"github.com/rs/zerolog"
)

// New builds the service-wide zerolog logger from the logging section of
// the config. Каждая запись несёт app/env/version, чтобы логи разных
// инстансов различались при агрегации. The returned closer is non-nil
// only for file output. Empty fields mean JSON to stdout at info level.
func New(cfg config.LoggingConfig, app config.AppConfig) (*zerolog.Logger, io.Closer, error) {
	sink, closer, err := openSink(cfg)
	if err != nil {
		return nil, nil, err
	}

	if normalize(cfg.Format) == "console" {
		sink = zerolog.ConsoleWriter{Out: sink, TimeFormat: time.RFC3339}
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano
	logger := zerolog.New(sink).
		Level(parseLevel(cfg.Level)).
		With().
		Timestamp().
		Str("app", app.Name).
		Str("env", app.Environment).
		Str("version", app.Version).
		Logger()

	return &logger, closer, nil
}

func openSink(cfg config.LoggingConfig) (io.Writer, io.Closer, error) {
	switch normalize(cfg.Output) {
	case "stderr":
		return os.Stderr, nil, nil
	case "file":
		if cfg.FilePath == "" {
			return nil, nil, fmt.Errorf("logging.output=file requires logging.file_path")
		}
		file, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		return file, file, nil
	default:
		return os.Stdout, nil, nil
	}
}

// parseLevel прощает мусор в конфиге и откатывается на info.
// ParseLevel трактует пустую строку как NoLevel, поэтому она
// отсекается отдельно.
func parseLevel(raw string) zerolog.Level {
	raw = normalize(raw)
	if raw == "" {
		return zerolog.InfoLevel
	}
	if parsed, err := zerolog.ParseLevel(raw); err == nil {
		return parsed
	}
	return zerolog.InfoLevel
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
