package signalhandler

import (
	"context"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"tamperdetect/logging"
)

// SetupHandler returns a context cancelled on SIGINT or SIGTERM, so that
// in-flight comparisons can release their native Mats before exit. A second
// signal exits immediately.
func SetupHandler(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			logging.LogInfo("Received %s, shutting down", sig)
			cancel()
		case <-ctx.Done():
			signal.Stop(sigChan)
			return
		}

		<-sigChan
		logging.LogWarning("Second signal received, exiting now")
		os.Exit(1)
	}()

	return ctx, cancel
}

// GetOptimalProcs returns the number of comparisons to run concurrently
func GetOptimalProcs() int {
	numCPU := runtime.NumCPU()

	// Each comparison already runs multi-threaded inside OpenCV
	maxProcs := (numCPU * 3) / 4
	if maxProcs < 1 {
		maxProcs = 1
	}

	return maxProcs
}
