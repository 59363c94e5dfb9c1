package period

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"betterme/internal/domain"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestNextOccurrence(t *testing.T) {
	from := date(2024, time.January, 31)

	next, ok := NextOccurrence(domain.PatternDaily, 1, from)
	assert.True(t, ok)
	assert.Equal(t, date(2024, time.February, 1), next)

	next, ok = NextOccurrence(domain.PatternWeekly, 2, from)
	assert.True(t, ok)
	assert.Equal(t, date(2024, time.February, 14), next)

	// Jan 31 + 1 month normalizes per calendar arithmetic.
	next, ok = NextOccurrence(domain.PatternMonthly, 1, from)
	assert.True(t, ok)
	assert.Equal(t, from.AddDate(0, 1, 0), next)

	next, ok = NextOccurrence(domain.PatternYearly, 1, date(2024, time.February, 29))
	assert.True(t, ok)
	assert.Equal(t, date(2025, time.March, 1), next)

	_, ok = NextOccurrence(domain.PatternNone, 1, from)
	assert.False(t, ok)
}

func TestNextOccurrenceClampsInterval(t *testing.T) {
	from := date(2024, time.March, 10)
	next, ok := NextOccurrence(domain.PatternDaily, 0, from)
	assert.True(t, ok)
	assert.Equal(t, date(2024, time.March, 11), next)

	next, ok = NextOccurrence(domain.PatternDaily, -3, from)
	assert.True(t, ok)
	assert.Equal(t, date(2024, time.March, 11), next)
}

func TestStart(t *testing.T) {
	// 2024-05-15 is a Wednesday.
	ref := time.Date(2024, time.May, 15, 13, 45, 0, 0, time.UTC)

	assert.Equal(t, date(2024, time.May, 15), Start(domain.FrequencyDaily, ref, time.Monday))
	assert.Equal(t, date(2024, time.May, 13), Start(domain.FrequencyWeekly, ref, time.Monday))
	assert.Equal(t, date(2024, time.May, 12), Start(domain.FrequencyWeekly, ref, time.Sunday))
	assert.Equal(t, date(2024, time.May, 1), Start(domain.FrequencyMonthly, ref, time.Monday))

	// A reference on the week start maps to itself.
	monday := date(2024, time.May, 13)
	assert.Equal(t, monday, Start(domain.FrequencyWeekly, monday, time.Monday))
}

func TestIsDue(t *testing.T) {
	today := date(2024, time.May, 15)

	assert.True(t, IsDue(nil, domain.FrequencyDaily, today))

	yesterday := date(2024, time.May, 14)
	assert.True(t, IsDue(&yesterday, domain.FrequencyDaily, today))
	assert.False(t, IsDue(&today, domain.FrequencyDaily, today))

	sixDaysAgo := date(2024, time.May, 9)
	sevenDaysAgo := date(2024, time.May, 8)
	assert.False(t, IsDue(&sixDaysAgo, domain.FrequencyWeekly, today))
	assert.True(t, IsDue(&sevenDaysAgo, domain.FrequencyWeekly, today))

	lastMonth := date(2024, time.April, 30)
	thisMonth := date(2024, time.May, 1)
	assert.True(t, IsDue(&lastMonth, domain.FrequencyMonthly, today))
	assert.False(t, IsDue(&thisMonth, domain.FrequencyMonthly, today))
}

func TestCountInPeriod(t *testing.T) {
	// Wednesday again; week starts Monday 2024-05-13.
	now := date(2024, time.May, 15)
	days := []string{"2024-05-11", "2024-05-13", "2024-05-14", "2024-05-15", "bogus"}

	assert.Equal(t, 1, CountInPeriod(days, domain.FrequencyDaily, now, time.Monday))
	assert.Equal(t, 3, CountInPeriod(days, domain.FrequencyWeekly, now, time.Monday))
	assert.Equal(t, 4, CountInPeriod(days, domain.FrequencyMonthly, now, time.Monday))
	assert.Equal(t, 0, CountInPeriod(nil, domain.FrequencyDaily, now, time.Monday))
}

func TestDayRoundTrip(t *testing.T) {
	ts := time.Date(2024, time.May, 15, 23, 59, 59, 0, time.UTC)
	assert.Equal(t, "2024-05-15", Day(ts))

	parsed, err := ParseDay("2024-05-15")
	assert.NoError(t, err)
	assert.Equal(t, date(2024, time.May, 15), parsed)

	_, err = ParseDay("15/05/2024")
	assert.Error(t, err)
}
