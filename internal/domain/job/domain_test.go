package job_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/DKorytin/Herald/internal/domain/job"
)

func TestBackoffDelay(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		base   time.Duration
		failed int
		want   time.Duration
	}{
		{"first failure", 2 * time.Second, 1, 2 * time.Second},
		{"second failure", 2 * time.Second, 2, 4 * time.Second},
		{"third failure", 2 * time.Second, 3, 8 * time.Second},
		{"custom base", 500 * time.Millisecond, 2, time.Second},
		{"zero base falls back to default", 0, 1, job.DefaultBaseDelay},
		{"failed below one clamps to one", 2 * time.Second, 0, 2 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, job.BackoffDelay(tt.base, tt.failed))
		})
	}
}

func TestOptions_Normalized(t *testing.T) {
	t.Parallel()

	got := job.Options{}.Normalized()
	assert.Equal(t, job.DefaultMaxAttempts, got.MaxAttempts)
	assert.Equal(t, time.Duration(0), got.Delay)
	assert.Equal(t, 0, got.Priority)

	got = job.Options{Priority: 7, Delay: -time.Second, MaxAttempts: 5}.Normalized()
	assert.Equal(t, 5, got.MaxAttempts)
	assert.Equal(t, time.Duration(0), got.Delay, "negative delay is clamped")
	assert.Equal(t, 7, got.Priority)
}
