package streak

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDistinct(t *testing.T) {
	days := []string{"2024-03-03", "2024-03-01", "2024-03-03", "junk", "2024-03-02"}
	got := Distinct(days)

	want := []time.Time{
		time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, time.March, 2, 0, 0, 0, 0, time.UTC),
		time.Date(2024, time.March, 3, 0, 0, 0, 0, time.UTC),
	}
	assert.Equal(t, want, got)
	assert.Empty(t, Distinct(nil))
}

func TestFromInstances(t *testing.T) {
	today := time.Date(2024, time.March, 10, 9, 30, 0, 0, time.UTC)

	cases := []struct {
		name string
		days []string
		want int
	}{
		{"empty", nil, 0},
		{"completed today only", []string{"2024-03-10"}, 1},
		{"run ending today", []string{"2024-03-08", "2024-03-09", "2024-03-10"}, 3},
		{"run ending yesterday survives", []string{"2024-03-08", "2024-03-09"}, 2},
		{"run ended before yesterday is dead", []string{"2024-03-07", "2024-03-08"}, 0},
		{"gap breaks the run", []string{"2024-03-06", "2024-03-08", "2024-03-09", "2024-03-10"}, 3},
		{"duplicates collapse", []string{"2024-03-10", "2024-03-10", "2024-03-09"}, 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, FromInstances(tc.days, today))
		})
	}
}

func TestRecalculate(t *testing.T) {
	cases := []struct {
		name    string
		days    []string
		current int
		longest int
	}{
		{"empty", nil, 0, 0},
		{"single day", []string{"2024-03-01"}, 1, 1},
		{"unbroken run", []string{"2024-03-01", "2024-03-02", "2024-03-03"}, 3, 3},
		{"gap resets current", []string{"2024-03-01", "2024-03-02", "2024-03-03", "2024-03-05"}, 1, 3},
		{"longest in the middle", []string{"2024-02-01", "2024-02-02", "2024-02-03", "2024-02-10", "2024-02-11"}, 2, 3},
		{"unsorted input", []string{"2024-03-03", "2024-03-01", "2024-03-02"}, 3, 3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			current, longest := Recalculate(tc.days)
			assert.Equal(t, tc.current, current, "current")
			assert.Equal(t, tc.longest, longest, "longest")
		})
	}
}
