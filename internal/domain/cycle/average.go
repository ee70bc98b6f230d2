package cycle

import (
	"math"
	"sort"
	"time"
)

// DefaultHistoryWindow is the number of most recent confirmed starts used for the average.
const DefaultHistoryWindow = 3

// AverageCycleLength returns the rounded mean gap between the most recent `window`
// confirmed period starts, clamped to the accepted cycle range. With fewer than two
// usable starts it returns fallback (also clamped).
//
// A gap longer than MaxCycleLength means starts went unconfirmed; it counts as the
// whole number of fallback-length cycles closest to it.
func AverageCycleLength(history []time.Time, window, fallback int) int {
	if window < 2 {
		window = DefaultHistoryWindow
	}
	fallback = clampCycleLength(fallback)

	starts := make([]time.Time, 0, len(history))
	for _, h := range history {
		starts = append(starts, Day(h))
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i].Before(starts[j]) })
	if len(starts) > window {
		starts = starts[len(starts)-window:]
	}

	sum, n := 0, 0
	for i := 1; i < len(starts); i++ {
		delta := DaysBetween(starts[i-1], starts[i])
		if delta <= 0 { // same day reported twice
			continue
		}
		sum += delta
		n += cyclesInGap(delta, fallback)
	}
	if n == 0 {
		return fallback
	}
	return clampCycleLength(int(math.Round(float64(sum) / float64(n))))
}

func cyclesInGap(delta, cycleLength int) int {
	if delta <= MaxCycleLength {
		return 1
	}
	k := int(math.Round(float64(delta) / float64(cycleLength)))
	if k < 1 {
		return 1
	}
	return k
}

func clampCycleLength(v int) int {
	if v < MinCycleLength {
		return MinCycleLength
	}
	if v > MaxCycleLength {
		return MaxCycleLength
	}
	return v
}
