package locations

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyStage(t *testing.T) {
	cases := []struct {
		percent float64
		want    string
	}{
		{0, StatusSafe},
		{42.5, StatusSafe},
		{69.99, StatusSafe},
		{70, StatusSemiCritical},
		{72, StatusSemiCritical},
		{89.99, StatusSemiCritical},
		{90, StatusCritical},
		{99.99, StatusCritical},
		{100, StatusOverExploited},
		{156.3, StatusOverExploited},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ClassifyStage(tc.percent), "percent=%v", tc.percent)
	}
}
