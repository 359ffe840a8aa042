//go:build !linux && !darwin

package procwatch

import (
	"context"
	"time"
)

func waitNative(ctx context.Context, pid int, interval time.Duration) error {
	return errNativeUnsupported
}
