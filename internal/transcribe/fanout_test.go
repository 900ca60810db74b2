package transcribe

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRetryPadBuckets(t *testing.T) {
	assert.Equal(t, 0.22, retryPad(0.5))
	assert.Equal(t, 0.22, retryPad(1.19))
	assert.Equal(t, 0.35, retryPad(1.2))
	assert.Equal(t, 0.35, retryPad(2.99))
	assert.Equal(t, 0.50, retryPad(3.0))
	assert.Equal(t, 0.50, retryPad(12.0))
}

func TestSortResultsOrdersByStartEndIndex(t *testing.T) {
	results := []SegmentResult{
		{Index: 2, Start: 5.0, End: 6.0},
		{Index: 0, Start: 1.0, End: 3.0},
		{Index: 3, Start: 1.0, End: 2.0},
		{Index: 1, Start: 1.0, End: 2.0},
	}
	sortResults(results)

	assert.Equal(t, 1, results[0].Index)
	assert.Equal(t, 3, results[1].Index)
	assert.Equal(t, 0, results[2].Index)
	assert.Equal(t, 2, results[3].Index)
}

func TestFormatSecondsClampsNegative(t *testing.T) {
	assert.Equal(t, "0.000", formatSeconds(-0.5))
	assert.Equal(t, "1.250", formatSeconds(1.25))
}
