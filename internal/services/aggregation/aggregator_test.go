package aggregation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"UniAD/internal/domain/models"
)

func series(t *testing.T, secs []int, flags []bool) models.FlagSeries {
	t.Helper()
	index := make([]time.Time, len(secs))
	for i, s := range secs {
		index[i] = time.Unix(int64(s), 0).UTC()
	}
	f, err := models.NewFlagSeries(index, flags)
	require.NoError(t, err)
	return f
}

func allFlagged(n int) []bool {
	out := make([]bool, n)
	for i := range out {
		out[i] = true
	}
	return out
}

func TestAggregateCollapsesClusters(t *testing.T) {
	in := series(t, []int{0, 20, 1000, 1200}, allFlagged(4))
	out, err := Aggregate(in, 500*time.Second)
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false, true, false}, out.Flags())
	assert.Equal(t, in.Timestamps(), out.Timestamps())
}

func TestAggregateWindowIsInclusive(t *testing.T) {
	in := series(t, []int{0, 500}, allFlagged(2))

	out, err := Aggregate(in, 500*time.Second)
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false}, out.Flags())

	out, err = Aggregate(in, 500*time.Second-time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, []bool{true, true}, out.Flags())
}

func TestAggregateChainWithinWindowOfAnchor(t *testing.T) {
	in := series(t, []int{0, 200, 450}, allFlagged(3))
	for _, mode := range []models.AnchorMode{models.AnchorKept, models.AnchorChained} {
		out, err := AggregateMode(in, 500*time.Second, mode)
		require.NoError(t, err)
		assert.Equal(t, []bool{true, false, false}, out.Flags(), string(mode))
	}
}

func TestAggregateAnchorModesDiffer(t *testing.T) {
	in := series(t, []int{0, 300, 600}, allFlagged(3))

	out, err := AggregateMode(in, 500*time.Second, models.AnchorKept)
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false, true}, out.Flags())

	out, err = AggregateMode(in, 500*time.Second, models.AnchorChained)
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false, false}, out.Flags())
}

func TestAggregateLeavesUnflaggedPointsAlone(t *testing.T) {
	in := series(t, []int{600, 700, 900, 1200, 1500, 2600}, []bool{true, false, true, true, true, true})

	out, err := AggregateMode(in, 500*time.Second, models.AnchorKept)
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false, false, true, false, true}, out.Flags())

	out, err = AggregateMode(in, 500*time.Second, models.AnchorChained)
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false, false, false, false, true}, out.Flags())
}

func TestAggregateIsIdempotent(t *testing.T) {
	in := series(t, []int{0, 20, 480, 510, 1000, 1001, 1600}, []bool{true, true, false, true, true, true, true})
	for _, mode := range []models.AnchorMode{models.AnchorKept, models.AnchorChained} {
		once, err := AggregateMode(in, 500*time.Second, mode)
		require.NoError(t, err)
		twice, err := AggregateMode(once, 500*time.Second, mode)
		require.NoError(t, err)
		assert.True(t, once.Equal(twice), string(mode))
	}
}

func TestAggregateOnlyClearsFlags(t *testing.T) {
	in := series(t, []int{0, 10, 20, 30, 700, 710, 2000}, []bool{true, false, true, true, false, true, true})
	out, err := Aggregate(in, 100*time.Second)
	require.NoError(t, err)
	require.Equal(t, in.Len(), out.Len())
	for i := 0; i < in.Len(); i++ {
		if out.Flag(i) {
			assert.True(t, in.Flag(i), "flag added at %d", i)
		}
	}
	assert.LessOrEqual(t, out.Flagged(), in.Flagged())
}

func TestAggregateDoesNotMutateInput(t *testing.T) {
	in := series(t, []int{0, 20}, allFlagged(2))
	_, err := Aggregate(in, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, []bool{true, true}, in.Flags())
}

func TestAggregateEmptyAndUnflagged(t *testing.T) {
	out, err := Aggregate(models.FlagSeries{}, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 0, out.Len())

	in := series(t, []int{0, 1, 2}, []bool{false, false, false})
	out, err = Aggregate(in, time.Minute)
	require.NoError(t, err)
	assert.True(t, in.Equal(out))
}

func TestAggregateRejectsBadArguments(t *testing.T) {
	in := series(t, []int{0, 1}, allFlagged(2))

	_, err := Aggregate(in, 0)
	require.ErrorIs(t, err, models.ErrInvalidInput)

	_, err = Aggregate(in, -time.Second)
	require.ErrorIs(t, err, models.ErrInvalidInput)

	_, err = AggregateMode(in, time.Second, models.AnchorMode("sliding"))
	require.ErrorIs(t, err, models.ErrInvalidInput)
}
