package main

import (
	"fmt"
	"strings"

	"github.com/leesper/holmes"
)

// holmesLogger adapts holmes to logger.Logger.
type holmesLogger struct{}

func (holmesLogger) Debug(message string, keyValuePairs ...interface{}) {
	holmes.Debugln(formatEntry(message, keyValuePairs))
}

func (holmesLogger) Info(message string, keyValuePairs ...interface{}) {
	holmes.Infoln(formatEntry(message, keyValuePairs))
}

func (holmesLogger) Warn(message string, keyValuePairs ...interface{}) {
	holmes.Warnln(formatEntry(message, keyValuePairs))
}

func (holmesLogger) Error(message string, keyValuePairs ...interface{}) {
	holmes.Errorln(formatEntry(message, keyValuePairs))
}

// formatEntry renders a message and its key/value pairs on one line.
func formatEntry(message string, keyValuePairs []interface{}) string {
	var b strings.Builder
	b.WriteString(message)

	for i := 0; i < len(keyValuePairs); i += 2 {
		if i+1 < len(keyValuePairs) {
			fmt.Fprintf(&b, " %v=%v", keyValuePairs[i], keyValuePairs[i+1])
		} else {
			fmt.Fprintf(&b, " %v=<missing>", keyValuePairs[i])
		}
	}

	return b.String()
}
