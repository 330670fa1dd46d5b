// internal/utils/logger.go
package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"pos-sync-service/internal/config"
)

// LoggerManager manages application logging
type LoggerManager struct {
	logger *zap.Logger
	config *config.LoggingConfig
}

// NewLogger creates a new logger instance based on configuration
func NewLogger(cfg *config.LoggingConfig) (*zap.Logger, error) {
	manager := &LoggerManager{
		config: cfg,
	}

	logger, err := manager.createLogger()
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	manager.logger = logger
	return logger, nil
}

// createLogger creates the zap logger with proper configuration
func (lm *LoggerManager) createLogger() (*zap.Logger, error) {
	encoderConfig := lm.getEncoderConfig()

	var encoder zapcore.Encoder
	switch lm.config.Format {
	case "console":
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	default:
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	writeSyncer, err := lm.getWriteSyncer()
	if err != nil {
		return nil, fmt.Errorf("failed to create write syncer: %w", err)
	}

	level, err := lm.getLogLevel()
	if err != nil {
		return nil, fmt.Errorf("failed to parse log level: %w", err)
	}

	core := zapcore.NewCore(encoder, writeSyncer, level)

	return zap.New(core, lm.getLoggerOptions()...), nil
}

// getEncoderConfig returns encoder configuration based on format
func (lm *LoggerManager) getEncoderConfig() zapcore.EncoderConfig {
	config := zap.NewProductionEncoderConfig()

	config.TimeKey = "timestamp"
	config.EncodeTime = zapcore.TimeEncoderOfLayout(time.RFC3339)
	config.LevelKey = "level"
	config.EncodeLevel = zapcore.LowercaseLevelEncoder
	config.CallerKey = "caller"
	config.EncodeCaller = zapcore.ShortCallerEncoder
	config.MessageKey = "message"
	config.StacktraceKey = "stacktrace"

	if lm.config.Format == "console" {
		config.EncodeLevel = zapcore.CapitalColorLevelEncoder
		config.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
	}

	return config
}

// getWriteSyncer returns write syncer based on output configuration
func (lm *LoggerManager) getWriteSyncer() (zapcore.WriteSyncer, error) {
	switch lm.config.Output {
	case "stdout":
		return zapcore.AddSync(os.Stdout), nil
	case "stderr":
		return zapcore.AddSync(os.Stderr), nil
	default:
		if lm.config.Output == "" {
			lm.config.Output = "./logs/pos-sync-service.log"
		}

		logDir := filepath.Dir(lm.config.Output)
		if err := os.MkdirAll(logDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}

		lumber := &lumberjack.Logger{
			Filename:   lm.config.Output,
			MaxSize:    lm.config.MaxSize, // MB
			MaxBackups: lm.config.MaxBackups,
			MaxAge:     lm.config.MaxAge, // days
			Compress:   lm.config.Compress,
		}

		return zapcore.AddSync(lumber), nil
	}
}

// getLogLevel parses and returns log level
func (lm *LoggerManager) getLogLevel() (zapcore.Level, error) {
	switch lm.config.Level {
	case "debug":
		return zapcore.DebugLevel, nil
	case "info":
		return zapcore.InfoLevel, nil
	case "warn":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	case "fatal":
		return zapcore.FatalLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("invalid log level: %s", lm.config.Level)
	}
}

// getLoggerOptions returns logger options
func (lm *LoggerManager) getLoggerOptions() []zap.Option {
	return []zap.Option{
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	}
}

// CycleLogger times and reports a single drain cycle
type CycleLogger struct {
	logger    *zap.Logger
	cycleID   string
	startTime time.Time
}

// NewCycleLogger creates a cycle-specific logger
func NewCycleLogger(baseLogger *zap.Logger, trigger, cycleID string) *CycleLogger {
	logger := baseLogger.With(
		zap.String("trigger", trigger),
		zap.String("cycle_id", cycleID),
		zap.String("component", "sync-cycle"),
	)

	return &CycleLogger{
		logger:    logger,
		cycleID:   cycleID,
		startTime: time.Now(),
	}
}

// Start logs cycle start
func (cl *CycleLogger) Start(pending int) {
	cl.logger.Info("Sync cycle started",
		zap.Time("start_time", cl.startTime),
		zap.Int("pending_orders", pending),
	)
}

// OrderSynced logs a single accepted order
func (cl *CycleLogger) OrderSynced(orderID, offlineID, serverOrderID string, duplicate bool) {
	cl.logger.Info("Order synced",
		zap.String("order_id", orderID),
		zap.String("offline_id", offlineID),
		zap.String("server_order_id", serverOrderID),
		zap.Bool("duplicate", duplicate),
	)
}

// OrderFailed logs a single rejected or undelivered order
func (cl *CycleLogger) OrderFailed(orderID, offlineID string, err error) {
	cl.logger.Warn("Order sync failed",
		zap.String("order_id", orderID),
		zap.String("offline_id", offlineID),
		zap.Error(err),
	)
}

// Finish logs the cycle outcome
func (cl *CycleLogger) Finish(synced, failed int) {
	fields := []zap.Field{
		zap.Duration("duration", time.Since(cl.startTime)),
		zap.Int("synced", synced),
		zap.Int("failed", failed),
	}
	if failed > 0 {
		cl.logger.Warn("Sync cycle completed with failures", fields...)
		return
	}
	cl.logger.Info("Sync cycle completed", fields...)
}

// Elapsed returns the time since the cycle started
func (cl *CycleLogger) Elapsed() time.Duration {
	return time.Since(cl.startTime)
}

// ServiceLogger provides service-level logging functionality
type ServiceLogger struct {
	*zap.Logger
	serviceName string
}

// NewServiceLogger creates a service-specific logger
func NewServiceLogger(baseLogger *zap.Logger, serviceName string) *ServiceLogger {
	logger := baseLogger.With(
		zap.String("service", serviceName),
		zap.String("component", "service"),
	)

	return &ServiceLogger{
		Logger:      logger,
		serviceName: serviceName,
	}
}

// LogServiceStart logs service startup
func (sl *ServiceLogger) LogServiceStart(version string, cfg *config.Config) {
	sl.Info("Service starting",
		zap.String("version", version),
		zap.String("environment", cfg.App.Environment),
		zap.String("store_backend", cfg.Store.Backend),
		zap.String("lease", cfg.Sync.Lease),
		zap.String("remote", cfg.Remote.BaseURL),
		zap.String("terminal_id", cfg.Remote.TerminalID),
	)
}

// LogServiceStop logs service shutdown
func (sl *ServiceLogger) LogServiceStop(reason string) {
	sl.Info("Service stopping",
		zap.String("reason", reason),
	)
}

// LogAPIRequest logs HTTP API requests
func (sl *ServiceLogger) LogAPIRequest(method, path, userAgent, clientIP string, statusCode int, duration time.Duration) {
	level := zapcore.InfoLevel
	if statusCode >= 400 {
		level = zapcore.WarnLevel
	}
	if statusCode >= 500 {
		level = zapcore.ErrorLevel
	}

	if ce := sl.Check(level, "API request"); ce != nil {
		ce.Write(
			zap.String("method", method),
			zap.String("path", path),
			zap.String("user_agent", userAgent),
			zap.String("client_ip", clientIP),
			zap.Int("status_code", statusCode),
			zap.Duration("duration", duration),
		)
	}
}

// AuditLogger records the lifecycle of every sale on the terminal
type AuditLogger struct {
	logger *zap.Logger
}

// NewAuditLogger creates an audit-specific logger
func NewAuditLogger(baseLogger *zap.Logger) *AuditLogger {
	return &AuditLogger{
		logger: baseLogger.With(zap.String("component", "audit")),
	}
}

// LogOrderCreated logs a sale recorded locally
func (al *AuditLogger) LogOrderCreated(orderID, orderNumber, offlineID, total string, items int) {
	al.logger.Info("Offline order created",
		zap.String("order_id", orderID),
		zap.String("order_number", orderNumber),
		zap.String("offline_id", offlineID),
		zap.String("total_amount", total),
		zap.Int("items", items),
		zap.String("action", "create_offline_order"),
	)
}

// LogOrderSynced logs a sale confirmed by the back office
func (al *AuditLogger) LogOrderSynced(orderID, serverOrderID string, attempts int) {
	al.logger.Info("Offline order synced",
		zap.String("order_id", orderID),
		zap.String("server_order_id", serverOrderID),
		zap.Int("attempts", attempts),
		zap.String("action", "sync_offline_order"),
	)
}

// LogOrderDeleted logs an operator removing a local order
func (al *AuditLogger) LogOrderDeleted(orderID string, wasSynced bool, clientIP string) {
	level := zapcore.InfoLevel
	if !wasSynced {
		level = zapcore.WarnLevel
	}
	if ce := al.logger.Check(level, "Offline order deleted"); ce != nil {
		ce.Write(
			zap.String("order_id", orderID),
			zap.Bool("was_synced", wasSynced),
			zap.String("client_ip", clientIP),
			zap.String("action", "delete_offline_order"),
		)
	}
}

// SecurityLogger provides security-related logging
type SecurityLogger struct {
	logger *zap.Logger
}

// NewSecurityLogger creates a security-specific logger
func NewSecurityLogger(baseLogger *zap.Logger) *SecurityLogger {
	return &SecurityLogger{
		logger: baseLogger.With(zap.String("component", "security")),
	}
}

// LogRateLimitViolation logs rate limit violations
func (sl *SecurityLogger) LogRateLimitViolation(clientIP, endpoint string, limit int64, timeWindow string) {
	sl.logger.Warn("Rate limit violation",
		zap.String("client_ip", clientIP),
		zap.String("endpoint", endpoint),
		zap.Int64("limit", limit),
		zap.String("time_window", timeWindow),
		zap.String("action", "rate_limit_violation"),
	)
}

// LoggerWithRequestID adds request ID to logger
func LoggerWithRequestID(logger *zap.Logger, requestID string) *zap.Logger {
	return logger.With(zap.String("request_id", requestID))
}

// CloseLogger flushes buffered log entries
func CloseLogger(logger *zap.Logger) error {
	return logger.Sync()
}
