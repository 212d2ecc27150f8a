package logging

import (
	"github.com/hilthontt/reelsync/internal/infrastructure/configs"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var zapLogLevelMapping = map[string]zapcore.Level{
	"debug": zapcore.DebugLevel,
	"info":  zapcore.InfoLevel,
	"warn":  zapcore.WarnLevel,
	"error": zapcore.ErrorLevel,
	"fatal": zapcore.FatalLevel,
}

type zapLogger struct {
	logger *zap.SugaredLogger
}

func newZapLogger(cfg configs.LoggerConfig) *zapLogger {
	level, ok := zapLogLevelMapping[cfg.Level]
	if !ok {
		level = zapcore.InfoLevel
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if cfg.Encoding == "console" {
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(newOutput(cfg.FilePath)), level)
	logger := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1), zap.AddStacktrace(zapcore.ErrorLevel)).
		Sugar().
		With(string(AppName), "reelsync", string(LoggerName), "zap")

	return &zapLogger{logger: logger}
}

// NewZap wraps an existing zap logger, mainly for tests using zaptest or zap.NewNop.
func NewZap(logger *zap.Logger) Logger {
	return &zapLogger{logger: logger.Sugar()}
}

// NewNop returns a logger that discards everything.
func NewNop() Logger {
	return NewZap(zap.NewNop())
}

func prepareZapParams(cat Category, sub SubCategory, extra map[ExtraKey]any) []any {
	if extra == nil {
		extra = make(map[ExtraKey]any, 2)
	}
	params := logParamsToZapParams(extra)
	return append(params, "Category", string(cat), "SubCategory", string(sub))
}

func (l *zapLogger) Debug(cat Category, sub SubCategory, msg string, extra map[ExtraKey]any) {
	l.logger.Debugw(msg, prepareZapParams(cat, sub, extra)...)
}

func (l *zapLogger) Debugf(template string, args ...any) {
	l.logger.Debugf(template, args...)
}

func (l *zapLogger) Info(cat Category, sub SubCategory, msg string, extra map[ExtraKey]any) {
	l.logger.Infow(msg, prepareZapParams(cat, sub, extra)...)
}

func (l *zapLogger) Infof(template string, args ...any) {
	l.logger.Infof(template, args...)
}

func (l *zapLogger) Warn(cat Category, sub SubCategory, msg string, extra map[ExtraKey]any) {
	l.logger.Warnw(msg, prepareZapParams(cat, sub, extra)...)
}

func (l *zapLogger) Warnf(template string, args ...any) {
	l.logger.Warnf(template, args...)
}

func (l *zapLogger) Error(cat Category, sub SubCategory, msg string, extra map[ExtraKey]any) {
	l.logger.Errorw(msg, prepareZapParams(cat, sub, extra)...)
}

func (l *zapLogger) Errorf(template string, args ...any) {
	l.logger.Errorf(template, args...)
}

func (l *zapLogger) Fatal(cat Category, sub SubCategory, msg string, extra map[ExtraKey]any) {
	l.logger.Fatalw(msg, prepareZapParams(cat, sub, extra)...)
}

func (l *zapLogger) Fatalf(template string, args ...any) {
	l.logger.Fatalf(template, args...)
}

func (l *zapLogger) Sync() error {
	return l.logger.Sync()
}
