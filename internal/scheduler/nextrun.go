package scheduler

import (
	"sort"
	"time"

	"github.com/applyflow/jobcrawl/internal/domain"
)

// DefaultFallbackIntervalMinutes is used when an advanced schedule is
// misconfigured (empty days or times): the schedule degrades to a flat
// interval rather than crashing or going dormant.
const DefaultFallbackIntervalMinutes = 60

// advancedScanDays bounds the forward day scan; any non-empty weekday set
// yields a hit within a week, the extra day covers the same-weekday wrap.
const advancedScanDays = 8

// ComputeNextRun returns the next due time for a schedule, strictly after
// now. For simple schedules this is lastRunTime (or now) + interval; for
// advanced schedules it is the next configured weekday/time in the
// schedule's timezone. An instant exactly equal to a configured time is
// treated as "not later" and pushed to the following slot.
func ComputeNextRun(sched *domain.ScheduledCrawl, now time.Time) time.Time {
	if sched.Schedule != nil && sched.Schedule.Type == domain.ScheduleTypeAdvanced {
		if next, ok := computeAdvanced(sched.Schedule, now); ok {
			return next
		}
	}

	interval := sched.IntervalMinutes
	if interval < domain.MinIntervalMinutes {
		interval = DefaultFallbackIntervalMinutes
	}
	step := time.Duration(interval) * time.Minute

	base := now
	if sched.LastRunTime != nil {
		base = *sched.LastRunTime
	}

	next := base.Add(step)
	if !next.After(now) {
		// A stale lastRunTime must not produce a nextRunTime in the past.
		next = now.Add(step)
	}
	return next
}

// computeAdvanced resolves a weekday/time/timezone schedule. Returns false
// when the spec is unusable (empty days or times, or no parseable time),
// signalling the caller to fall back to the flat interval.
func computeAdvanced(spec *domain.ScheduleSpec, now time.Time) (time.Time, bool) {
	if len(spec.Days) == 0 || len(spec.Times) == 0 {
		return time.Time{}, false
	}

	loc := time.UTC
	if spec.Timezone != "" {
		if parsed, err := time.LoadLocation(spec.Timezone); err == nil {
			loc = parsed
		}
	}

	days := make(map[time.Weekday]struct{}, len(spec.Days))
	for _, d := range spec.Days {
		if d >= 0 && d <= 6 {
			days[time.Weekday(d)] = struct{}{}
		}
	}
	times := parseTimes(spec.Times)
	if len(days) == 0 || len(times) == 0 {
		return time.Time{}, false
	}

	local := now.In(loc)

	for offset := 0; offset < advancedScanDays; offset++ {
		day := local.AddDate(0, 0, offset)
		if _, scheduled := days[day.Weekday()]; !scheduled {
			continue
		}

		for _, tod := range times {
			candidate := time.Date(day.Year(), day.Month(), day.Day(),
				tod.hour, tod.minute, 0, 0, loc)
			if candidate.After(local) {
				return candidate, true
			}
		}
	}

	return time.Time{}, false
}

// timeOfDay is a parsed "HH:MM" entry.
type timeOfDay struct {
	hour   int
	minute int
}

// parseTimes parses and sorts "HH:MM" strings, dropping malformed entries.
func parseTimes(raw []string) []timeOfDay {
	times := make([]timeOfDay, 0, len(raw))
	for _, s := range raw {
		parsed, err := time.Parse("15:04", s)
		if err != nil {
			continue
		}
		times = append(times, timeOfDay{hour: parsed.Hour(), minute: parsed.Minute()})
	}

	sort.Slice(times, func(i, j int) bool {
		if times[i].hour != times[j].hour {
			return times[i].hour < times[j].hour
		}
		return times[i].minute < times[j].minute
	})
	return times
}
