package os

import (
	"os"
	"os/signal"
	"syscall"
)

// CheckCreateDir makes path with its parents unless it exists.
func CheckCreateDir(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	return os.MkdirAll(path, 0755)
}

// ExpectTermination returns a channel that receives the first SIGINT
// or SIGTERM.
func ExpectTermination() <-chan os.Signal {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	return signals
}
