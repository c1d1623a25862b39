//go:build !windows

package main

import (
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/twistedxcom/panedeck/internal/logging"
)

// handleDumpSignal writes the in-memory log ring to dir on SIGUSR1.
func handleDumpSignal(dir string) (stop func()) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGUSR1)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ch:
				path := filepath.Join(dir, dumpFileName(time.Now()))
				if err := logging.DumpRingBuffer(path); err != nil {
					mainLog.Warn("ring_dump_failed", slog.String("error", err.Error()))
					continue
				}
				mainLog.Info("ring_dumped", slog.String("path", path))
			case <-done:
				return
			}
		}
	}()
	return func() {
		signal.Stop(ch)
		close(done)
	}
}
