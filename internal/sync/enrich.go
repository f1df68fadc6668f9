package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	dbpkg "stridesync/internal/db"
	"stridesync/internal/strava"
	"stridesync/internal/units"
)

// Outcome is the terminal/retryable verdict of one enrichment attempt.
type Outcome int

const (
	// OutcomeRetry means the attempt hit a failed-for-now condition
	// (rate limit, upstream outage); the caller decides when to retry.
	OutcomeRetry Outcome = iota

	// OutcomeEnriched means the activity was enriched (or already was).
	OutcomeEnriched

	// OutcomeSkipped means the activity hit a terminal provider error
	// and has been marked so batches stop selecting it.
	OutcomeSkipped
)

// Enricher fetches full detail, HR zones, and laps for single
// activities and writes the derived fields back. One Enricher drives
// one athlete's activities strictly sequentially.
type Enricher struct {
	tokens     TokenSource
	api        API
	activities ActivityStore
	splits     SplitStore

	// MaxAttempts bounds retries of one activity within a batch;
	// RetryBase grows as base*2^attempt between them. Pacing is slept
	// after every successful enrichment to respect the provider's
	// steady-state rate limit.
	MaxAttempts int
	RetryBase   time.Duration
	Pacing      time.Duration

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

func NewEnricher(tokens TokenSource, api API, activities ActivityStore, splits SplitStore) *Enricher {
	return &Enricher{
		tokens:     tokens,
		api:        api,
		activities: activities,
		splits:     splits,

		MaxAttempts: 5,
		RetryBase:   2 * time.Second,
		Pacing:      time.Second,

		now:   time.Now,
		sleep: sleepCtx,
	}
}

// EnrichOne runs the enrichment state machine for a single activity.
// Errors are returned only for athlete-fatal conditions (missing
// credential, failed refresh) and local persistence failures; provider
// trouble is folded into the Outcome.
func (e *Enricher) EnrichOne(ctx context.Context, athleteID, activityID int64) (Outcome, error) {
	act, err := e.activities.Get(ctx, activityID)
	if err != nil {
		return OutcomeRetry, fmt.Errorf("sync: load activity %d: %w", activityID, err)
	}
	if act == nil {
		return OutcomeRetry, fmt.Errorf("sync: activity %d not stored", activityID)
	}

	// Idempotent short-circuit: already enriched, no remote calls.
	if act.EnrichedAt != nil {
		return OutcomeEnriched, nil
	}

	accessToken, err := e.tokens.ValidToken(ctx, athleteID)
	if err != nil {
		return OutcomeRetry, err
	}

	detail, err := e.api.GetActivity(ctx, accessToken, activityID)
	if errors.Is(err, strava.ErrUnauthorized) {
		// The store considered the token valid but the provider did
		// not. Refresh once and retry the call exactly once.
		accessToken, err = e.tokens.ForceRefresh(ctx, athleteID)
		if err != nil {
			return OutcomeRetry, err
		}
		detail, err = e.api.GetActivity(ctx, accessToken, activityID)
	}
	if err != nil {
		if strava.Retryable(err) {
			// The client already slept its backoff; hand the decision
			// back to the batch driver.
			return OutcomeRetry, nil
		}
		log.Printf("sync: activity %d enrichment failed terminally: %v", activityID, err)
		if markErr := e.activities.MarkFailed(ctx, activityID); markErr != nil {
			return OutcomeRetry, fmt.Errorf("sync: mark activity %d failed: %w", activityID, markErr)
		}
		recordEnrichFailure()
		return OutcomeSkipped, nil
	}

	zones, err := e.api.GetHRZones(ctx, accessToken, activityID)
	if err != nil {
		if strava.Retryable(err) {
			return OutcomeRetry, nil
		}
		// Missing or broken HR data never fails enrichment on its own;
		// the zone percentages simply stay at zero.
		log.Printf("sync: activity %d zones unavailable: %v", activityID, err)
		zones = nil
	}

	splits := splitsFromLaps(activityID, detail.Laps)
	if err := e.splits.ReplaceForActivity(ctx, activityID, splits); err != nil {
		return OutcomeRetry, fmt.Errorf("sync: replace splits for activity %d: %w", activityID, err)
	}

	fields := enrichedFields(detail, zonePercents(zones))
	if err := e.activities.MarkEnriched(ctx, activityID, fields, e.now()); err != nil {
		return OutcomeRetry, fmt.Errorf("sync: mark activity %d enriched: %w", activityID, err)
	}

	recordEnriched()
	return OutcomeEnriched, nil
}

// RunBatch drives EnrichOne over up to batchSize unenriched activities,
// newest first. Each activity gets bounded retries with increasing
// sleeps; a stubborn one is skipped so it never blocks the rest.
// Returns the number of activities enriched in this batch.
func (e *Enricher) RunBatch(ctx context.Context, athleteID int64, batchSize int) (int, error) {
	acts, err := e.activities.Unenriched(ctx, athleteID, batchSize)
	if err != nil {
		return 0, fmt.Errorf("sync: select enrichment batch: %w", err)
	}

	enriched := 0
	for _, act := range acts {
		if err := ctx.Err(); err != nil {
			return enriched, err
		}

		outcome, err := e.enrichWithRetries(ctx, athleteID, act.ActivityID)
		if err != nil {
			// Athlete-fatal conditions and local persistence failures
			// abort the batch; per-activity provider trouble never
			// surfaces as an error here.
			return enriched, err
		}
		if outcome != OutcomeEnriched {
			continue
		}

		enriched++
		if err := e.sleep(ctx, e.Pacing); err != nil {
			return enriched, err
		}
	}
	return enriched, nil
}

func (e *Enricher) enrichWithRetries(ctx context.Context, athleteID, activityID int64) (Outcome, error) {
	for attempt := 0; attempt < e.MaxAttempts; attempt++ {
		outcome, err := e.EnrichOne(ctx, athleteID, activityID)
		if err != nil {
			return outcome, err
		}
		if outcome != OutcomeRetry {
			return outcome, nil
		}
		if attempt+1 >= e.MaxAttempts {
			break
		}
		wait := e.RetryBase * (1 << attempt)
		log.Printf("sync: activity %d not ready, retrying in %s (attempt %d/%d)", activityID, wait, attempt+1, e.MaxAttempts)
		if err := e.sleep(ctx, wait); err != nil {
			return OutcomeRetry, err
		}
	}
	log.Printf("sync: giving up on activity %d for this batch", activityID)
	return OutcomeRetry, nil
}

// zonePercents computes each heart-rate zone's share of total recorded
// time, rounded to one decimal. Degenerate input (no heartrate group,
// zero total time) yields all zeros.
func zonePercents(groups []strava.ZoneGroup) [5]float64 {
	var pcts [5]float64

	var buckets []strava.ZoneBucket
	for _, g := range groups {
		if g.Type == "heartrate" {
			buckets = g.DistributionBuckets
			break
		}
	}
	if len(buckets) == 0 {
		return pcts
	}

	var total float64
	for _, b := range buckets {
		total += b.Time
	}
	if total <= 0 {
		return pcts
	}

	for i := 0; i < len(pcts) && i < len(buckets); i++ {
		pcts[i] = math.Round(buckets[i].Time/total*1000) / 10
	}
	return pcts
}

// splitsFromLaps maps the detail payload's lap array onto split rows
// with converted display fields. Laps without a provider lap_index are
// numbered by position.
func splitsFromLaps(activityID int64, laps []strava.Lap) []dbpkg.Split {
	splits := make([]dbpkg.Split, 0, len(laps))
	for i, lap := range laps {
		idx := lap.LapIndex
		if idx == 0 {
			idx = i + 1
		}
		s := dbpkg.Split{
			ActivityID: activityID,
			LapIndex:   idx,

			Distance:     lap.Distance,
			ElapsedTime:  lap.ElapsedTime,
			MovingTime:   lap.MovingTime,
			AverageSpeed: lap.AverageSpeed,
			MaxSpeed:     lap.MaxSpeed,
			StartIndex:   lap.StartIndex,
			EndIndex:     lap.EndIndex,

			AverageHeartRate: lap.AverageHeartRate,
			PaceZone:         lap.PaceZone,

			MovingTimeDisplay:  units.FormatHMS(lap.MovingTime),
			ElapsedTimeDisplay: units.FormatHMS(lap.ElapsedTime),
		}
		miles := units.MetersToMiles(lap.Distance)
		s.DistanceMiles = &miles
		if pace, ok := units.SpeedToPaceMinMi(lap.AverageSpeed); ok {
			s.PaceMinMi = &pace
		}
		splits = append(splits, s)
	}
	return splits
}

func enrichedFields(detail *strava.DetailedActivity, pcts [5]float64) dbpkg.EnrichedFields {
	fields := dbpkg.EnrichedFields{
		Calories:    detail.Calories,
		SufferScore: detail.SufferScore,

		AverageHeartRate: detail.AverageHeartRate,
		MaxHeartRate:     detail.MaxHeartRate,

		HRZonePcts: pcts,

		MovingTimeDisplay:  units.FormatHMS(detail.MovingTime),
		ElapsedTimeDisplay: units.FormatHMS(detail.ElapsedTime),
	}

	miles := units.MetersToMiles(detail.Distance)
	fields.DistanceMiles = &miles
	feet := units.MetersToFeet(detail.TotalElevationGain)
	fields.ElevationFeet = &feet
	if pace, ok := units.SpeedToPaceMinMi(detail.AverageSpeed); ok {
		fields.AveragePaceMinMi = &pace
	}
	if pace, ok := units.SpeedToPaceMinMi(detail.MaxSpeed); ok {
		fields.MaxPaceMinMi = &pace
	}

	if raw, err := json.Marshal(detail); err == nil {
		fields.RawDetail = raw
	}

	return fields
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
