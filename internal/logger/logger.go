// Package logger provides a process-global structured logger built on
// arbor, adapted from the teacher's double-checked-locking singleton
// pattern but simplified to scout's config surface (level/format only;
// scout is a CLI and short-lived daemon, not a long-running service with
// rotating log files).
package logger

import (
	"sync"

	"github.com/ternarybob/arbor"
	arborcommon "github.com/ternarybob/arbor/common"
	"github.com/ternarybob/arbor/models"

	"github.com/scoutforge/scout/internal/config"
)

var (
	globalLogger arbor.ILogger
	loggerMutex  sync.RWMutex
)

// GetLogger returns the global logger instance. If InitLogger hasn't been
// called yet, returns a fallback console logger so early startup code
// always has somewhere to write.
func GetLogger() arbor.ILogger {
	loggerMutex.RLock()
	if globalLogger != nil {
		loggerMutex.RUnlock()
		return globalLogger
	}
	loggerMutex.RUnlock()

	loggerMutex.Lock()
	defer loggerMutex.Unlock()

	if globalLogger == nil {
		globalLogger = arbor.NewLogger().
			WithConsoleWriter(writerConfig(nil)).
			WithLevelFromString("info")
		globalLogger.Warn().Msg("using fallback logger - Setup() should be called during startup")
	}
	return globalLogger
}

// InitLogger stores the provided logger as the global singleton.
func InitLogger(l arbor.ILogger) {
	loggerMutex.Lock()
	defer loggerMutex.Unlock()
	globalLogger = l
}

// Setup configures the global logger from the merged configuration
// (internal/config.LoggingConfig) and stores it as the singleton.
func Setup(cfg *config.Config) arbor.ILogger {
	l := arbor.NewLogger().
		WithConsoleWriter(writerConfig(cfg)).
		WithMemoryWriter(writerConfig(cfg)).
		WithLevelFromString(cfg.Logging.Level)

	InitLogger(l)
	return l
}

func writerConfig(cfg *config.Config) models.WriterConfiguration {
	outputType := models.OutputFormatLogfmt
	if cfg != nil && cfg.Logging.Format == "json" {
		outputType = models.OutputFormatJSON
	}
	return models.WriterConfiguration{
		Type:             models.LogWriterTypeConsole,
		TimeFormat:       "15:04:05.000",
		OutputType:       outputType,
		DisableTimestamp: false,
	}
}

// Stop flushes any remaining buffered logs before process exit. Safe to
// call multiple times.
func Stop() {
	arborcommon.Stop()
}
