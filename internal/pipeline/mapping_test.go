package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeWindow_PreviousDay(t *testing.T) {
	daily := DailyFrom(2021, 6, 1)
	m := TimeWindow{StartOffset: -1, EndOffset: -1, AllowNonexistent: true}

	keys, err := m.Upstream(daily, "2021-06-05", daily, testNow)
	require.NoError(t, err)
	assert.Equal(t, []string{"2021-06-04"}, keys)

	keys, err = m.Upstream(daily, "2021-06-01", daily, testNow)
	require.NoError(t, err)
	assert.Empty(t, keys, "day before the first partition does not exist")
}

func TestTimeWindow_DaysOfMonth(t *testing.T) {
	daily := DailyFrom(2021, 5, 1)
	monthly := MonthlyFrom(2021, 5, 1)

	keys, err := TimeWindow{}.Upstream(monthly, "2021-05-01", daily, testNow)
	require.NoError(t, err)
	assert.Len(t, keys, 31)
	assert.Equal(t, "2021-05-01", keys[0])
	assert.Equal(t, "2021-05-31", keys[30])

	_, err = TimeWindow{}.Upstream(monthly, "2021-06-01", daily, testNow)
	assert.ErrorIs(t, err, ErrMissingUpstream, "June is not over")

	keys, err = TimeWindow{AllowNonexistent: true}.Upstream(monthly, "2021-06-01", daily, testNow)
	require.NoError(t, err)
	assert.Len(t, keys, 9)
}

func TestTimeWindow_FromUnpartitioned(t *testing.T) {
	_, err := TimeWindow{}.Upstream(nil, "", DailyFrom(2021, 6, 1), testNow)
	assert.ErrorIs(t, err, ErrInvalidStep)
}

func TestIdentity(t *testing.T) {
	daily := DailyFrom(2021, 6, 1)

	keys, err := Identity{}.Upstream(daily, "2021-06-03", daily, testNow)
	require.NoError(t, err)
	assert.Equal(t, []string{"2021-06-03"}, keys)

	_, err = Identity{}.Upstream(daily, "2021-06-10", daily, testNow)
	assert.ErrorIs(t, err, ErrMissingUpstream)

	_, err = Identity{}.Upstream(MonthlyFrom(2021, 6, 1), "2021-06-01", daily, testNow)
	assert.ErrorIs(t, err, ErrInvalidStep)
}

func TestAllPartitions(t *testing.T) {
	keys, err := AllPartitions{}.Upstream(nil, "", MonthlyFrom(2021, 1, 1), testNow)
	require.NoError(t, err)
	assert.Equal(t, []string{"2021-01-01", "2021-02-01", "2021-03-01", "2021-04-01", "2021-05-01"}, keys)
}
