package camera

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyDriver struct {
	failuresLeft int
	calls        int
}

func (d *flakyDriver) Acquire(_ context.Context, exposureMs float64) (float64, error) {
	d.calls++
	if d.failuresLeft > 0 {
		d.failuresLeft--
		return 0, errors.New("exposure failed")
	}
	return exposureMs, nil
}

func (d *flakyDriver) AcquireFull(ctx context.Context, exposureMs float64) ([]byte, error) {
	if _, err := d.Acquire(ctx, exposureMs); err != nil {
		return nil, err
	}
	return []byte("frame"), nil
}

func TestWithRetry_RecoversFromTransientFailures(t *testing.T) {
	// Given a driver that fails twice before succeeding
	inner := &flakyDriver{failuresLeft: 2}
	driver := WithRetry(inner)

	brightness, err := driver.Acquire(context.Background(), 100)

	require.NoError(t, err)
	assert.Equal(t, 100.0, brightness)
	assert.Equal(t, 3, inner.calls)
}

func TestWithRetry_GivesUpAfterThreeAttempts(t *testing.T) {
	inner := &flakyDriver{failuresLeft: 10}
	driver := WithRetry(inner)

	_, err := driver.Acquire(context.Background(), 100)

	assert.Error(t, err)
	assert.Equal(t, 3, inner.calls)
}

func TestWithRetry_HonorsCancellation(t *testing.T) {
	inner := &flakyDriver{failuresLeft: 10}
	driver := WithRetry(inner)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := driver.Acquire(ctx, 100)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, inner.calls)
}

func TestSimDriver_LinearResponse(t *testing.T) {
	driver := NewSimDriver(0.5)

	low, err := driver.Acquire(context.Background(), 10)
	require.NoError(t, err)
	high, err := driver.Acquire(context.Background(), 100)
	require.NoError(t, err)

	assert.Equal(t, 5.0, low)
	assert.Equal(t, 50.0, high)
}

func TestSimDriver_ClipsAtFullWell(t *testing.T) {
	driver := NewSimDriver(0.5)

	b, err := driver.Acquire(context.Background(), 30000)

	require.NoError(t, err)
	assert.Equal(t, 255.0, b)
}

func TestSimDriver_EncodesPNG(t *testing.T) {
	driver := NewSimDriver(0.5)

	frame, err := driver.AcquireFull(context.Background(), 100)

	require.NoError(t, err)
	// PNG magic bytes
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, frame[:4])
}
