//go:build !unix

package procwatch

import (
	"context"
	"fmt"
	"runtime"
	"time"
)

func pollExit(ctx context.Context, pid int, interval time.Duration) error {
	return fmt.Errorf("process watching is not supported on %s", runtime.GOOS)
}

// Alive reports true: without signal probing every process is assumed live.
func Alive(pid int) bool {
	return pid > 0
}
