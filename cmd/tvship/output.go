package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"

	"tvship/internal/services/webos"
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiYellow = "\x1b[33m"
	ansiDim    = "\x1b[2m"
)

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func renderLogLine(event webos.LogEvent, colorize bool) string {
	ts := event.TS
	if parsed, err := time.Parse(time.RFC3339Nano, event.TS); err == nil {
		ts = parsed.Local().Format("15:04:05.000")
	}
	level := strings.ToUpper(event.Level)
	if level == "" {
		level = "INFO"
	}
	line := fmt.Sprintf("%s %-5s %s %s", ts, level, event.App, event.Line)
	if !colorize {
		return line
	}
	switch strings.ToLower(event.Level) {
	case "error":
		return ansiRed + line + ansiReset
	case "warn":
		return ansiYellow + line + ansiReset
	case "debug":
		return ansiDim + line + ansiReset
	default:
		return line
	}
}
