package status

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatContextUsageShort(t *testing.T) {
	tests := []struct {
		total, limit int
		want         string
	}{
		{0, 0, "Context ?"},
		{0, 200000, "Context ?/200k"},
		{10000, 200000, "Context 10k/200k (5%)"},
		{100000, 200000, "Context 100k/200k (50%)"},
		{1500000, 2000000, "Context 1.5m/2.0m (75%)"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatContextUsageShort(tt.total, tt.limit))
	}
}

func TestFormatAge(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{-time.Second, "unknown"},
		{0, "just now"},
		{59 * time.Second, "just now"},
		{5 * time.Minute, "5m ago"},
		{90 * time.Minute, "1h ago"},
		{48 * time.Hour, "2d ago"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatAge(tt.d))
	}
}
