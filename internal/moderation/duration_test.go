package moderation_test

import (
	"testing"
	"time"

	"github.com/robalyx/modcase/internal/moderation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDuration(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  time.Duration
	}{
		{"30s", 30 * time.Second},
		{"5m", 5 * time.Minute},
		{"12h", 12 * time.Hour},
		{"2d", 48 * time.Hour},
		{"1w", 7 * 24 * time.Hour},
		{"3M", 90 * 24 * time.Hour},
		{"1y", 365 * 24 * time.Hour},
	}

	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			t.Parallel()

			got, err := moderation.ParseDuration(tc.input)
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, tc.want, *got)
		})
	}
}

func TestParseDurationPermanent(t *testing.T) {
	t.Parallel()

	for _, input := range []string{"perm", "permanent", "PERM", "Permanent"} {
		got, err := moderation.ParseDuration(input)
		require.NoError(t, err)
		assert.Nil(t, got)
	}
}

func TestParseDurationInvalid(t *testing.T) {
	t.Parallel()

	for _, input := range []string{"", "10", "x5m", "-3h", "0d", "5q", "m"} {
		_, err := moderation.ParseDuration(input)

		var parseErr *moderation.ParseError

		require.ErrorAs(t, err, &parseErr, "input %q", input)
		assert.Equal(t, input, parseErr.Input)
	}
}

func TestFormatDuration(t *testing.T) {
	t.Parallel()

	twoDays := 48 * time.Hour
	ninety := 90 * time.Second

	assert.Equal(t, "permanent", moderation.FormatDuration(nil))
	assert.Equal(t, "2d", moderation.FormatDuration(&twoDays))
	assert.Equal(t, "90s", moderation.FormatDuration(&ninety))
}
