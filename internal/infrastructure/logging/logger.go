package logging

import (
	"fmt"

	"github.com/hilthontt/reelsync/internal/infrastructure/configs"
)

type Logger interface {
	Debug(cat Category, sub SubCategory, msg string, extra map[ExtraKey]any)
	Debugf(template string, args ...any)

	Info(cat Category, sub SubCategory, msg string, extra map[ExtraKey]any)
	Infof(template string, args ...any)

	Warn(cat Category, sub SubCategory, msg string, extra map[ExtraKey]any)
	Warnf(template string, args ...any)

	Error(cat Category, sub SubCategory, msg string, extra map[ExtraKey]any)
	Errorf(template string, args ...any)

	Fatal(cat Category, sub SubCategory, msg string, extra map[ExtraKey]any)
	Fatalf(template string, args ...any)

	Sync() error
}

func NewLogger(cfg configs.LoggerConfig) (Logger, error) {
	switch cfg.Logger {
	case "zap", "":
		return newZapLogger(cfg), nil
	case "zerolog":
		return newZeroLogger(cfg), nil
	}

	return nil, fmt.Errorf("logger %q not supported: supported loggers: [zap, zerolog]", cfg.Logger)
}
