package resolver

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swaroopt14/iicwms-cognitive-observability-sub001/pkg/blackboard"
)

func saveCycle(t *testing.T, client *blackboard.Client, id string, offset time.Duration) {
	t.Helper()
	completed := time.Date(2026, 4, 2, 12, 0, 0, 0, time.UTC).Add(offset)
	err := client.SaveCycle(context.Background(), &blackboard.CycleSnapshot{
		Cycle: blackboard.Cycle{
			ID:          id,
			StartedAt:   completed.Add(-time.Second),
			CompletedAt: &completed,
			Status:      blackboard.CycleStatusComplete,
			Phase:       blackboard.PhaseClosed,
		},
	})
	require.NoError(t, err)
}

func TestResolveCycleID(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := blackboard.NewClient(&redis.Options{Addr: mr.Addr()}, "test-instance")
	require.NoError(t, err)
	defer client.Close()
	ctx := context.Background()

	saveCycle(t, client, "abc12345-1111-4111-8111-111111111111", 0)
	saveCycle(t, client, "def67890-2222-4222-8222-222222222222", time.Minute)
	saveCycle(t, client, "def67899-3333-4333-8333-333333333333", 2*time.Minute)

	t.Run("full id", func(t *testing.T) {
		id, err := ResolveCycleID(ctx, client, "abc12345-1111-4111-8111-111111111111")
		require.NoError(t, err)
		assert.Equal(t, "abc12345-1111-4111-8111-111111111111", id)
	})

	t.Run("unknown full id", func(t *testing.T) {
		_, err := ResolveCycleID(ctx, client, "99999999-1111-4111-8111-111111111111")
		assert.True(t, IsNotFoundError(err))
	})

	t.Run("unique prefix", func(t *testing.T) {
		id, err := ResolveCycleID(ctx, client, "ABC123")
		require.NoError(t, err)
		assert.Equal(t, "abc12345-1111-4111-8111-111111111111", id)
	})

	t.Run("too short", func(t *testing.T) {
		_, err := ResolveCycleID(ctx, client, "abc")
		assert.ErrorContains(t, err, "at least 6 characters")
	})

	t.Run("no match", func(t *testing.T) {
		_, err := ResolveCycleID(ctx, client, "ffffff")
		assert.True(t, IsNotFoundError(err))
		assert.EqualError(t, err, "no cycles found matching 'ffffff'")
	})

	t.Run("ambiguous", func(t *testing.T) {
		_, err := ResolveCycleID(ctx, client, "def6789")
		require.True(t, IsAmbiguousError(err))
		amb := err.(*AmbiguousError)
		assert.Equal(t, []string{
			"def67899-3333-4333-8333-333333333333",
			"def67890-2222-4222-8222-222222222222",
		}, amb.Matches)
	})

	t.Run("non-hex prefix", func(t *testing.T) {
		_, err := ResolveCycleID(ctx, client, "abc12*")
		assert.ErrorContains(t, err, "hex digits")
	})

	t.Run("latest", func(t *testing.T) {
		id, err := ResolveCycleID(ctx, client, "latest")
		require.NoError(t, err)
		assert.Equal(t, "def67899-3333-4333-8333-333333333333", id)

		id, err = ResolveCycleID(ctx, client, "LATEST~2")
		require.NoError(t, err)
		assert.Equal(t, "abc12345-1111-4111-8111-111111111111", id)
	})

	t.Run("latest beyond history", func(t *testing.T) {
		_, err := ResolveCycleID(ctx, client, "latest~3")
		assert.True(t, IsNotFoundError(err))
	})

	t.Run("malformed relative reference", func(t *testing.T) {
		for _, ref := range []string{"latest2", "latest~", "latest~-1"} {
			_, err := ResolveCycleID(ctx, client, ref)
			assert.ErrorContains(t, err, "invalid relative reference", ref)
		}
	})
}

func TestResolveCycleID_EvictedCycleDoesNotMatch(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := blackboard.NewClient(&redis.Options{Addr: mr.Addr()}, "test-instance")
	require.NoError(t, err)
	defer client.Close()
	client.SetHistorySize(1)

	saveCycle(t, client, "aaa11111-1111-4111-8111-111111111111", 0)
	saveCycle(t, client, "aaa22222-2222-4222-8222-222222222222", time.Minute)

	_, err = ResolveCycleID(context.Background(), client, "aaa111")
	assert.True(t, IsNotFoundError(err))

	id, err := ResolveCycleID(context.Background(), client, "aaa")
	assert.ErrorContains(t, err, "at least 6")
	assert.Empty(t, id)

	id, err = ResolveCycleID(context.Background(), client, "aaa222")
	require.NoError(t, err)
	assert.Equal(t, "aaa22222-2222-4222-8222-222222222222", id)
}

func TestFormatAmbiguousError(t *testing.T) {
	matches := make([]string, 12)
	for i := range matches {
		matches[i] = strings.Repeat(string(rune('a'+i)), 8)
	}

	msg := FormatAmbiguousError(&AmbiguousError{ShortID: "abcdef", Matches: matches})
	assert.Contains(t, msg, "matches 12 cycles")
	assert.Contains(t, msg, "  jjjjjjjj\n")
	assert.NotContains(t, msg, "kkkkkkkk")
	assert.Contains(t, msg, "...and 2 more")
	assert.True(t, strings.HasSuffix(msg, "uniquely identify the cycle."))
}
