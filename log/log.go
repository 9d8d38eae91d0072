package log

import (
	"io"
	"os"
	"time"

	"github.com/examproxy/sebproxy/option"
	E "github.com/sagernet/sing/common/exceptions"
)

type Options struct {
	Options       option.LogOptions
	DefaultWriter io.Writer
	BaseTime      time.Time
}

func New(options Options) (Factory, error) {
	logOptions := options.Options
	if logOptions.Disabled {
		return NewNOPFactory(), nil
	}
	var (
		logWriter io.Writer
		isFile    bool
	)
	switch logOptions.Output {
	case "":
		logWriter = options.DefaultWriter
		if logWriter == nil {
			logWriter = os.Stderr
		}
	case "stderr":
		logWriter = os.Stderr
	case "stdout":
		logWriter = os.Stdout
	default:
		logFile, err := os.OpenFile(logOptions.Output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, E.Cause(err, "open log file")
		}
		logWriter = logFile
		isFile = true
	}
	factory := NewFactory(Formatter{
		BaseTime:         options.BaseTime,
		DisableColors:    logOptions.DisableColor || isFile,
		DisableTimestamp: !logOptions.Timestamp && isFile,
		FullTimestamp:    logOptions.Timestamp,
		TimestampFormat:  "-0700 2006-01-02 15:04:05",
	}, logWriter)
	logLevel, err := ParseLevel(logOptions.Level)
	if err != nil {
		factory.Close()
		return nil, E.Cause(err, "parse log level")
	}
	factory.SetLevel(logLevel)
	return factory, nil
}
