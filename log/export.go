package log

import (
	"os"
	"time"
)

// std backs the command line before a configured factory exists.
var std = NewFactory(Formatter{BaseTime: time.Now()}, os.Stderr).Logger()

func Info(args ...any) {
	std.Info(args...)
}

func Error(args ...any) {
	std.Error(args...)
}

func Fatal(args ...any) {
	std.Fatal(args...)
}
