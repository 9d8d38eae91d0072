package log

import (
	"github.com/sagernet/sing/common/logger"
)

type (
	Logger        = logger.Logger
	ContextLogger = logger.ContextLogger
)

type Factory interface {
	Level() Level
	SetLevel(level Level)
	Logger() ContextLogger
	NewLogger(tag string) ContextLogger
	Close() error
}
