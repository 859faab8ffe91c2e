// Package camera defines the acquisition capability the capture engine is
// built against, plus a retrying decorator and a simulated driver. A real
// sensor (ZWO ASI or similar) plugs in behind the same interface.
package camera

import (
	"context"
	"time"
)

// Driver is the camera acquisition capability.
//
// Acquire captures a test frame and returns the mean brightness (ADU) of the
// central sensor region. AcquireFull captures a full-resolution frame and
// returns it PNG-encoded. Neither may be called concurrently; the camera is a
// single physical resource and callers serialize access.
type Driver interface {
	Acquire(ctx context.Context, exposureMs float64) (float64, error)
	AcquireFull(ctx context.Context, exposureMs float64) ([]byte, error)
}

const (
	retryAttempts = 3
	retryPause    = 500 * time.Millisecond
)

// WithRetry wraps a driver so each acquisition is attempted up to 3 times
// with a short pause between attempts, mirroring how flaky USB camera links
// behave in the field. The last error is returned when all attempts fail.
func WithRetry(inner Driver) Driver {
	return &retryDriver{inner: inner}
}

type retryDriver struct {
	inner Driver
}

func (d *retryDriver) Acquire(ctx context.Context, exposureMs float64) (float64, error) {
	var brightness float64
	err := d.retry(ctx, func() error {
		var err error
		brightness, err = d.inner.Acquire(ctx, exposureMs)
		return err
	})
	return brightness, err
}

func (d *retryDriver) AcquireFull(ctx context.Context, exposureMs float64) ([]byte, error) {
	var frame []byte
	err := d.retry(ctx, func() error {
		var err error
		frame, err = d.inner.AcquireFull(ctx, exposureMs)
		return err
	})
	return frame, err
}

func (d *retryDriver) retry(ctx context.Context, attempt func() error) error {
	var lastErr error
	for i := 0; i < retryAttempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if lastErr = attempt(); lastErr == nil {
			return nil
		}
		if i < retryAttempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryPause):
			}
		}
	}
	return lastErr
}
