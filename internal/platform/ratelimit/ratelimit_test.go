package ratelimit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func TestIPLimiterReusesLimiterPerIP(t *testing.T) {
	l := NewIPLimiter(rate.Limit(1), 1)
	first := l.get("1.2.3.4")
	second := l.get("1.2.3.4")
	assert.Same(t, first, second)
}

func TestIPLimiterSeparatesDistinctIPs(t *testing.T) {
	l := NewIPLimiter(rate.Limit(1), 1)
	a := l.get("1.2.3.4")
	b := l.get("5.6.7.8")
	assert.NotSame(t, a, b)
}
