//go:build !linux

package logger

// isTerminal disables color output off Linux.
func isTerminal(fd uintptr) bool {
	return false
}
