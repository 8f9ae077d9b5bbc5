package serialmux

import (
	"strconv"
	"strings"
)

// BridgeStartCommands are sent by Initialize: stop any stream in progress,
// select the line protocol, then start streaming.
var BridgeStartCommands = []string{
	"STREAM OFF",
	"FORMAT CSV",
	"STREAM ON",
}

var staticCommands = map[string]bool{
	"STREAM ON":  true,
	"STREAM OFF": true,
	"FORMAT CSV": true,
	"STATUS":     true,
	"VERSION":    true,
}

// IsAllowedCommand reports whether a command may be sent through the admin
// API: one of the static commands or "ACCEL RATE <hz>" with 1 <= hz <= 200.
func IsAllowedCommand(cmd string) bool {
	cmd = strings.ToUpper(strings.TrimSpace(cmd))
	if staticCommands[cmd] {
		return true
	}
	return isValidRateCommand(cmd)
}

func isValidRateCommand(cmd string) bool {
	const prefix = "ACCEL RATE "
	if !strings.HasPrefix(cmd, prefix) {
		return false
	}
	hz, err := strconv.Atoi(strings.TrimSpace(cmd[len(prefix):]))
	if err != nil {
		return false
	}
	return hz >= 1 && hz <= 200
}
