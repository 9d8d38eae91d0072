package log

import (
	"context"
	"strconv"
	"strings"
	"time"

	F "github.com/sagernet/sing/common/format"

	"github.com/logrusorgru/aurora"
)

type Formatter struct {
	BaseTime         time.Time
	DisableColors    bool
	DisableTimestamp bool
	FullTimestamp    bool
	TimestampFormat  string
}

func (f Formatter) Format(ctx context.Context, level Level, tag string, message string, timestamp time.Time) string {
	levelString := strings.ToUpper(FormatLevel(level))
	if !f.DisableColors {
		levelString = colorLevel(level, levelString)
	}
	if tag != "" {
		message = tag + ": " + message
	}
	if ctx != nil {
		if id, loaded := IDFromContext(ctx); loaded {
			if f.DisableColors {
				message = F.ToString("[", id.ID, " ", formatDuration(timestamp.Sub(id.CreatedAt)), "] ", message)
			} else {
				message = F.ToString("[", aurora.Colorize(id.ID, idColor(id.ID)).String(), " ", formatDuration(timestamp.Sub(id.CreatedAt)), "] ", message)
			}
		}
	}
	switch {
	case f.DisableTimestamp:
		message = levelString + " " + message
	case f.FullTimestamp:
		message = timestamp.Format(f.TimestampFormat) + " " + levelString + " " + message
	default:
		message = levelString + "[" + padNumber(int(timestamp.Sub(f.BaseTime)/time.Second), 4) + "] " + message
	}
	if message == "" || message[len(message)-1] != '\n' {
		message += "\n"
	}
	return message
}

func colorLevel(level Level, levelString string) string {
	switch level {
	case LevelDebug, LevelTrace:
		return aurora.White(levelString).String()
	case LevelInfo:
		return aurora.Cyan(levelString).String()
	case LevelWarn:
		return aurora.Yellow(levelString).String()
	default:
		return aurora.Red(levelString).String()
	}
}

// idColor maps an ID onto the 6x6x6 cube of the 256-colour palette,
// flipping colours too dark to read on a black terminal.
func idColor(id uint32) aurora.Color {
	color := aurora.Color(uint8(id)) % 215
	row := uint(color / 36)
	column := uint(color % 36)
	r := float32(row * 51)
	g := float32(column / 6 * 51)
	b := float32((column % 6) * 51)
	if 0.2126*r+0.7152*g+0.0722*b < 60 {
		row = 5 - row
		column = 35 - column
		color = aurora.Color(row*36 + column)
	}
	color += 16
	color = color << 16
	color |= 1 << 14
	return color
}

func formatDuration(duration time.Duration) string {
	if duration < time.Second {
		return F.ToString(duration.Milliseconds(), "ms")
	} else if duration < time.Minute {
		return F.ToString(int64(duration.Seconds()), ".", int64(duration.Seconds()*100)%100, "s")
	}
	return F.ToString(int64(duration.Minutes()), "m", int64(duration.Seconds())%60, "s")
}

func padNumber(value int, width int) string {
	message := strconv.Itoa(value)
	for len(message) < width {
		message = "0" + message
	}
	return message
}
