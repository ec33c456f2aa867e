package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/estimapres/edgehub/internal/config"
)

// edgehub 的日志消息本身就是事件名（proxy_complete、shell_fallback、
// generation_deleted 等），JSON 中以 event 字段输出，便于按事件聚合。
var jsonFormatter = &logrus.JSONFormatter{
	TimestampFormat: time.RFC3339Nano,
	FieldMap: logrus.FieldMap{
		logrus.FieldKeyMsg: "event",
	},
}

// InitLogger 构造 worker、边缘代理与支付中继共用的 logger。
// 日志文件不可写时退回 stdout，只记录一条 logger_fallback，不阻止启动。
func InitLogger(cfg config.GlobalConfig) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("无法解析日志级别: %w", err)
	}

	output, fallbackErr := openOutput(cfg)
	if fallbackErr != nil {
		fmt.Fprintf(os.Stderr, "logger_fallback: %v\n", fallbackErr)
	}

	logger := &logrus.Logger{
		Out:       output,
		Formatter: jsonFormatter,
		Hooks:     make(logrus.LevelHooks),
		Level:     level,
		ExitFunc:  os.Exit,
	}
	// 第三方库经由 logrus 全局实例输出，保持同一格式与去向。
	logrus.SetFormatter(jsonFormatter)
	logrus.SetOutput(output)
	logrus.SetLevel(level)

	if fallbackErr != nil {
		logger.WithFields(logrus.Fields{
			"action": "logger_fallback",
			"path":   cfg.LogFilePath,
			"error":  fallbackErr.Error(),
		}).Warn("logger_fallback")
	}
	return logger, nil
}

// Discard 返回丢弃所有输出的 logger。
func Discard() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// openOutput 未配置 LogFilePath 时写 stdout；配置了则交给 lumberjack 轮转。
func openOutput(cfg config.GlobalConfig) (io.Writer, error) {
	if cfg.LogFilePath == "" {
		return os.Stdout, nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.LogFilePath), 0o755); err != nil {
		return os.Stdout, fmt.Errorf("创建日志目录失败: %w", err)
	}
	return &lumberjack.Logger{
		Filename:   cfg.LogFilePath,
		MaxSize:    cfg.LogMaxSize,
		MaxBackups: cfg.LogMaxBackups,
		Compress:   cfg.LogCompress,
		LocalTime:  true,
	}, nil
}
