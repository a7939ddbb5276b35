package radar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGcdDuration(t *testing.T) {
	cases := []struct {
		a, b, want time.Duration
	}{
		{2 * time.Second, 3 * time.Second, time.Second},
		{4 * time.Second, 6 * time.Second, 2 * time.Second},
		{5 * time.Second, 5 * time.Second, 5 * time.Second},
		{0, 5 * time.Second, 5 * time.Second},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, gcdDuration(c.a, c.b))
	}
}
