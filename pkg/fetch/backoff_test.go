package fetch_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Cachi0001/Biz-sub011/pkg/fetch"
)

func TestExponentialBackoff(t *testing.T) {
	t.Parallel()

	t.Run("doubles from the base delay", func(t *testing.T) {
		t.Parallel()

		b := fetch.Exponential(100 * time.Millisecond)
		assert.Equal(t, time.Duration(0), b.NextInterval(0))
		assert.Equal(t, 100*time.Millisecond, b.NextInterval(1))
		assert.Equal(t, 200*time.Millisecond, b.NextInterval(2))
		assert.Equal(t, 400*time.Millisecond, b.NextInterval(3))
	})

	t.Run("caps at max interval", func(t *testing.T) {
		t.Parallel()

		b := fetch.ExponentialBackoff{
			InitialInterval: time.Second,
			MaxInterval:     5 * time.Second,
			Multiplier:      2,
		}
		assert.Equal(t, 5*time.Second, b.NextInterval(10))
	})

	t.Run("jitter never shortens the delay", func(t *testing.T) {
		t.Parallel()

		b := fetch.ExponentialBackoff{
			InitialInterval: 100 * time.Millisecond,
			MaxInterval:     time.Minute,
			Multiplier:      2,
			JitterFactor:    0.5,
		}
		for range 50 {
			d := b.NextInterval(2)
			assert.GreaterOrEqual(t, d, 200*time.Millisecond)
			assert.LessOrEqual(t, d, 300*time.Millisecond)
		}
	})
}

func TestFixedBackoff(t *testing.T) {
	t.Parallel()

	b := fetch.FixedBackoff{Interval: time.Second}
	assert.Equal(t, time.Duration(0), b.NextInterval(0))
	assert.Equal(t, time.Second, b.NextInterval(1))
	assert.Equal(t, time.Second, b.NextInterval(7))
}
