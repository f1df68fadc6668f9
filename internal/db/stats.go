package db

import (
	"context"
	"sort"
	"time"

	"stridesync/internal/units"
)

// WeeklyStat summarizes one ISO week of stored running activity for
// the status page.
type WeeklyStat struct {
	WeekStart time.Time

	ActivityCount int
	DistanceMiles float64
	MovingTime    int
	ElevationFeet float64
}

// WeeklyStats aggregates the athlete's activities of the last `weeks`
// weeks into per-week totals, most recent week first. Grouping happens
// in Go over a narrow column selection rather than in SQL so the
// bucketing (Monday-start weeks in UTC) stays in one place.
func (s *ActivityStore) WeeklyStats(ctx context.Context, athleteID int64, weeks int) ([]WeeklyStat, error) {
	since := weekStart(time.Now().UTC()).AddDate(0, 0, -7*(weeks-1))

	var acts []Activity
	err := s.db.WithContext(ctx).
		Where("athlete_id = ? AND start_date >= ?", athleteID, since).
		Select("start_date", "distance", "moving_time", "elevation_gain").
		Find(&acts).Error
	if err != nil {
		return nil, err
	}

	buckets := make(map[time.Time]*WeeklyStat)
	for _, a := range acts {
		ws := weekStart(a.StartDate.UTC())
		stat, ok := buckets[ws]
		if !ok {
			stat = &WeeklyStat{WeekStart: ws}
			buckets[ws] = stat
		}
		stat.ActivityCount++
		stat.DistanceMiles += units.MetersToMiles(a.Distance)
		stat.MovingTime += a.MovingTime
		stat.ElevationFeet += units.MetersToFeet(a.ElevationGain)
	}

	out := make([]WeeklyStat, 0, len(buckets))
	for _, stat := range buckets {
		out = append(out, *stat)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WeekStart.After(out[j].WeekStart) })
	return out, nil
}

// weekStart truncates t to the Monday 00:00 UTC that starts its week.
func weekStart(t time.Time) time.Time {
	t = t.Truncate(24 * time.Hour)
	offset := (int(t.Weekday()) + 6) % 7
	return t.AddDate(0, 0, -offset)
}
