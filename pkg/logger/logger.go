package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var log = zap.NewNop()

// Init 初始化全局 logger；format 为 console 时使用开发模式输出
func Init(level, format string) error {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}

	var cfg zap.Config
	if format == "console" {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	l, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return err
	}
	log = l
	return nil
}

// L 返回底层 *zap.Logger，给需要 zap.Logger 的组件使用
func L() *zap.Logger { return log }

func Debug(msg string, fields ...zap.Field) { log.Debug(msg, fields...) }

func Info(msg string, fields ...zap.Field) { log.Info(msg, fields...) }

func Warn(msg string, fields ...zap.Field) { log.Warn(msg, fields...) }

func Error(msg string, fields ...zap.Field) { log.Error(msg, fields...) }

func Fatal(msg string, fields ...zap.Field) { log.Fatal(msg, fields...) }

func Sync() error { return log.Sync() }
