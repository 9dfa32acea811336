package retry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestShouldRetry(t *testing.T) {
	cases := []struct {
		name               string
		enabled            bool
		retryCount         int
		maxRetries         int
		handlerShouldRetry bool
		want               bool
	}{
		{"disabled globally", false, 0, 3, true, false},
		{"handler declines", true, 0, 3, false, false},
		{"exhausted", true, 3, 3, true, false},
		{"eligible", true, 2, 3, true, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, ShouldRetry(c.enabled, c.retryCount, c.maxRetries, c.handlerShouldRetry))
		})
	}
}

func TestComputeDelay_BaseAtZero(t *testing.T) {
	p := Policy{Enabled: true, BaseDelay: 100 * time.Millisecond}
	assert.Equal(t, 100*time.Millisecond, p.ComputeDelay(0))
}

func TestComputeDelay_ExponentialGrows(t *testing.T) {
	p := Policy{Enabled: true, BaseDelay: 100 * time.Millisecond}
	d0 := p.ComputeDelay(0)
	d1 := p.ComputeDelay(1)
	d2 := p.ComputeDelay(2)
	assert.True(t, d1 > d0)
	assert.True(t, d2 > d1)
}

func TestComputeDelay_RespectsMaxDelay(t *testing.T) {
	p := Policy{Enabled: true, BaseDelay: time.Second, MaxDelay: 2 * time.Second}
	assert.Equal(t, 2*time.Second, p.ComputeDelay(10))
}

func TestLinearBackoff_BaseAtZero(t *testing.T) {
	assert.Equal(t, 50*time.Millisecond, LinearBackoff(50*time.Millisecond, 0))
}
