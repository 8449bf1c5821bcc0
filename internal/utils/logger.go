// internal/utils/logger.go
package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"ffb-control-service/internal/config"
)

const defaultLogFile = "./logs/ffb-control.log"

// LoggerManager manages application logging
type LoggerManager struct {
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

	level, err := ParseLevel(lm.config.Level)
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
	config.EncodeTime = zapcore.TimeEncoderOfLayout(time.RFC3339Nano)
	config.LevelKey = "level"
	config.EncodeLevel = zapcore.LowercaseLevelEncoder
	config.CallerKey = "caller"
	config.EncodeCaller = zapcore.ShortCallerEncoder
	config.MessageKey = "message"
	config.StacktraceKey = "stacktrace"

	// Console format customizations
	if lm.config.Format == "console" {
		config.EncodeLevel = zapcore.CapitalColorLevelEncoder
		config.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05.000")
	}

	return config
}

// getWriteSyncer returns the sink for the configured output. Output is a
// comma separated list of "stdout", "stderr" or file paths; files rotate
// through lumberjack.
func (lm *LoggerManager) getWriteSyncer() (zapcore.WriteSyncer, error) {
	outputs := strings.Split(lm.config.Output, ",")

	syncers := make([]zapcore.WriteSyncer, 0, len(outputs))
	for _, output := range outputs {
		syncer, err := lm.openOutput(strings.TrimSpace(output))
		if err != nil {
			return nil, err
		}
		syncers = append(syncers, syncer)
	}

	if len(syncers) == 1 {
		return syncers[0], nil
	}
	return zapcore.NewMultiWriteSyncer(syncers...), nil
}

func (lm *LoggerManager) openOutput(output string) (zapcore.WriteSyncer, error) {
	switch output {
	case "stdout":
		return zapcore.AddSync(os.Stdout), nil
	case "stderr":
		return zapcore.AddSync(os.Stderr), nil
	case "":
		output = defaultLogFile
	}

	if err := os.MkdirAll(filepath.Dir(output), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	return zapcore.AddSync(&lumberjack.Logger{
		Filename:   output,
		MaxSize:    lm.config.MaxSize, // MB
		MaxBackups: lm.config.MaxBackups,
		MaxAge:     lm.config.MaxAge, // days
		Compress:   lm.config.Compress,
	}), nil
}

// ParseLevel maps a config level name onto a zap level
func ParseLevel(level string) (zapcore.Level, error) {
	switch level {
	case "debug":
		return zapcore.DebugLevel, nil
	case "info", "":
		return zapcore.InfoLevel, nil
	case "warn":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	case "fatal":
		return zapcore.FatalLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("invalid log level: %s", level)
	}
}

// getLoggerOptions returns logger options
func (lm *LoggerManager) getLoggerOptions() []zap.Option {
	return []zap.Option{
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	}
}

// DeviceLogger wraps zap.Logger with wheel-specific fields
type DeviceLogger struct {
	*zap.Logger
	port     string
	firmware string
}

// NewDeviceLogger creates a device-specific logger
func NewDeviceLogger(baseLogger *zap.Logger, port, firmware string) *DeviceLogger {
	logger := baseLogger.With(
		zap.String("port", port),
		zap.String("firmware", firmware),
		zap.String("component", "device"),
	)

	return &DeviceLogger{
		Logger:   logger,
		port:     port,
		firmware: firmware,
	}
}

// LogCommand logs a single wire command with its outcome
func (dl *DeviceLogger) LogCommand(command string, duration time.Duration, attempt int, err error) {
	fields := []zap.Field{
		zap.String("command", command),
		zap.Duration("duration", duration),
		zap.Int("attempt", attempt),
	}

	if err != nil {
		fields = append(fields, zap.Error(err))
		dl.Warn("Device command failed", fields...)
	} else {
		dl.Debug("Device command completed", fields...)
	}
}

// LogConnection logs connection events
func (dl *DeviceLogger) LogConnection(action string, success bool, err error) {
	fields := []zap.Field{
		zap.String("action", action),
		zap.Bool("success", success),
	}

	if err != nil {
		fields = append(fields, zap.Error(err))
		dl.Error("Device connection event", fields...)
	} else {
		dl.Info("Device connection event", fields...)
	}
}

// OperationLogger provides structured logging for operations
type OperationLogger struct {
	logger      *zap.Logger
	operationID string
	startTime   time.Time
}

// NewOperationLogger creates an operation-specific logger
func NewOperationLogger(baseLogger *zap.Logger, operationType, operationID string) *OperationLogger {
	logger := baseLogger.With(
		zap.String("operation_type", operationType),
		zap.String("operation_id", operationID),
		zap.String("component", "operation"),
	)

	return &OperationLogger{
		logger:      logger,
		operationID: operationID,
		startTime:   time.Now(),
	}
}

// Start logs operation start
func (ol *OperationLogger) Start(fields ...zap.Field) {
	ol.logger.Debug("Operation started", fields...)
}

// Success logs successful operation completion
func (ol *OperationLogger) Success(fields ...zap.Field) {
	allFields := append([]zap.Field{
		zap.Duration("duration", time.Since(ol.startTime)),
		zap.Bool("success", true),
	}, fields...)

	ol.logger.Info("Operation completed successfully", allFields...)
}

// Error logs operation failure
func (ol *OperationLogger) Error(err error, fields ...zap.Field) {
	allFields := append([]zap.Field{
		zap.Duration("duration", time.Since(ol.startTime)),
		zap.Bool("success", false),
		zap.Error(err),
	}, fields...)

	ol.logger.Error("Operation failed", allFields...)
}

// Progress logs operation progress
func (ol *OperationLogger) Progress(message string, progress float64, fields ...zap.Field) {
	allFields := append([]zap.Field{
		zap.Float64("progress", progress),
		zap.Duration("elapsed", time.Since(ol.startTime)),
	}, fields...)

	ol.logger.Debug(message, allFields...)
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
func (sl *ServiceLogger) LogServiceStart(version string, config interface{}) {
	sl.Info("Service starting",
		zap.String("version", version),
		zap.Any("config", config),
	)
}

// LogServiceStop logs service shutdown
func (sl *ServiceLogger) LogServiceStop(reason string) {
	sl.Info("Service stopping",
		zap.String("reason", reason),
	)
}

// WithRequestID returns a copy of the logger tagged with a request ID
func (sl *ServiceLogger) WithRequestID(requestID string) *ServiceLogger {
	if requestID == "" {
		return sl
	}
	return &ServiceLogger{
		Logger:      LoggerWithRequestID(sl.Logger, requestID),
		serviceName: sl.serviceName,
	}
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

// AuditLogger records changes to the wheel configuration
type AuditLogger struct {
	logger *zap.Logger
}

// NewAuditLogger creates an audit-specific logger
func NewAuditLogger(baseLogger *zap.Logger) *AuditLogger {
	return &AuditLogger{
		logger: baseLogger.With(zap.String("component", "audit")),
	}
}

// LogConfigChange logs the field-level differences of an applied configuration
func (al *AuditLogger) LogConfigChange(action string, changes []string) {
	al.logger.Info("Wheel configuration changed",
		zap.String("action", action),
		zap.Strings("changes", changes),
	)
}

// LogPersistence logs a persistence state transition
func (al *AuditLogger) LogPersistence(from, to string, profile string) {
	al.logger.Info("Persistence state changed",
		zap.String("from", from),
		zap.String("to", to),
		zap.String("profile", profile),
		zap.String("action", "persistence_transition"),
	)
}

// LoggerWithRequestID adds request ID to logger
func LoggerWithRequestID(logger *zap.Logger, requestID string) *zap.Logger {
	return logger.With(zap.String("request_id", requestID))
}

// LogError is a helper function for consistent error logging
func LogError(logger *zap.Logger, message string, err error, fields ...zap.Field) {
	allFields := append([]zap.Field{zap.Error(err)}, fields...)
	logger.Error(message, allFields...)
}

func CloseLogger(logger *zap.Logger) error {
	return logger.Sync()
}
