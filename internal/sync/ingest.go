// Package sync implements the synchronization and enrichment pipeline:
// pulling activity listings into the local store, enriching each
// activity with heart-rate zone and lap detail, and orchestrating full
// runs. Everything here executes sequentially per athlete; the
// provider's global rate limit makes fan-out counterproductive.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	dbpkg "stridesync/internal/db"
	"stridesync/internal/strava"
	"stridesync/internal/units"
)

// TokenSource hands out valid provider access tokens.
type TokenSource interface {
	ValidToken(ctx context.Context, athleteID int64) (string, error)
	ForceRefresh(ctx context.Context, athleteID int64) (string, error)
}

// API is the subset of the provider client the pipeline consumes.
type API interface {
	ListActivities(ctx context.Context, accessToken string, after, before time.Time, page, perPage int) ([]strava.SummaryActivity, error)
	GetActivity(ctx context.Context, accessToken string, activityID int64) (*strava.DetailedActivity, error)
	GetHRZones(ctx context.Context, accessToken string, activityID int64) ([]strava.ZoneGroup, error)
}

// ActivityStore is the activity persistence surface of the pipeline.
type ActivityStore interface {
	UpsertBatch(ctx context.Context, activities []dbpkg.Activity) (int, error)
	Get(ctx context.Context, activityID int64) (*dbpkg.Activity, error)
	KnownIDs(ctx context.Context, ids []int64) (map[int64]bool, error)
	Unenriched(ctx context.Context, athleteID int64, limit int) ([]dbpkg.Activity, error)
	MarkEnriched(ctx context.Context, activityID int64, fields dbpkg.EnrichedFields, enrichedAt time.Time) error
	MarkFailed(ctx context.Context, activityID int64) error
}

// SplitStore persists the lap rows of one enrichment pass.
type SplitStore interface {
	ReplaceForActivity(ctx context.Context, activityID int64, splits []dbpkg.Split) error
}

// runningTypes is the tracked activity domain. Everything else in the
// listing is silently excluded.
var runningTypes = map[string]bool{
	"Run":        true,
	"TrailRun":   true,
	"VirtualRun": true,
}

func isRunning(a strava.SummaryActivity) bool {
	if a.SportType != "" {
		return runningTypes[a.SportType]
	}
	return runningTypes[a.Type]
}

// Ingestor pulls activity listings and upserts them keyed on the
// provider activity id. Re-running over the same window is a no-op in
// effect and never creates duplicate rows.
type Ingestor struct {
	tokens     TokenSource
	api        API
	activities ActivityStore

	PerPage int
}

func NewIngestor(tokens TokenSource, api API, activities ActivityStore) *Ingestor {
	return &Ingestor{tokens: tokens, api: api, activities: activities, PerPage: 50}
}

// Ingest pulls the athlete's listing for the window, filters to
// running activities, and upserts them in one batch. maxItems <= 0
// means unbounded. Returns the number of rows upserted; on a listing
// failure mid-window the pages collected so far are still upserted and
// the error is returned alongside the partial count.
func (i *Ingestor) Ingest(ctx context.Context, athleteID int64, after, before time.Time, maxItems int) (int, error) {
	summaries, listErr := i.listWindow(ctx, athleteID, after, before, maxItems)

	rows := make([]dbpkg.Activity, 0, len(summaries))
	for _, s := range summaries {
		rows = append(rows, activityFromSummary(athleteID, s))
	}

	n, err := i.activities.UpsertBatch(ctx, rows)
	if err != nil {
		return 0, fmt.Errorf("sync: upsert activities: %w", err)
	}
	return n, listErr
}

// IngestNew is the set-difference variant used by full runs: only
// activities not yet stored are upserted, so the returned count is the
// number of genuinely new rows.
func (i *Ingestor) IngestNew(ctx context.Context, athleteID int64, after, before time.Time, maxItems int) (int, error) {
	summaries, listErr := i.listWindow(ctx, athleteID, after, before, maxItems)
	if len(summaries) == 0 {
		return 0, listErr
	}

	ids := make([]int64, 0, len(summaries))
	for _, s := range summaries {
		ids = append(ids, s.ID)
	}
	known, err := i.activities.KnownIDs(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("sync: check known activities: %w", err)
	}

	rows := make([]dbpkg.Activity, 0, len(summaries))
	for _, s := range summaries {
		if known[s.ID] {
			continue
		}
		rows = append(rows, activityFromSummary(athleteID, s))
	}
	if len(rows) == 0 {
		return 0, listErr
	}

	n, err := i.activities.UpsertBatch(ctx, rows)
	if err != nil {
		return 0, fmt.Errorf("sync: upsert new activities: %w", err)
	}
	recordSynced(n)
	return n, listErr
}

// listWindow pages through the listing until an empty page or the item
// cap. Each page is subject to the client's own backoff policy; a 401
// forces one token refresh and one retry of the failing page.
func (i *Ingestor) listWindow(ctx context.Context, athleteID int64, after, before time.Time, maxItems int) ([]strava.SummaryActivity, error) {
	accessToken, err := i.tokens.ValidToken(ctx, athleteID)
	if err != nil {
		return nil, err
	}

	var collected []strava.SummaryActivity
	refreshed := false

	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return collected, err
		}

		batch, err := i.api.ListActivities(ctx, accessToken, after, before, page, i.PerPage)
		if errors.Is(err, strava.ErrUnauthorized) && !refreshed {
			refreshed = true
			accessToken, err = i.tokens.ForceRefresh(ctx, athleteID)
			if err != nil {
				return collected, err
			}
			batch, err = i.api.ListActivities(ctx, accessToken, after, before, page, i.PerPage)
		}
		if err != nil {
			return collected, fmt.Errorf("sync: list activities page %d: %w", page, err)
		}
		if len(batch) == 0 {
			return collected, nil
		}

		for _, a := range batch {
			if !isRunning(a) {
				continue
			}
			collected = append(collected, a)
			if maxItems > 0 && len(collected) >= maxItems {
				return collected, nil
			}
		}
	}
}

// activityFromSummary maps one listing entry onto a store row,
// computing the converted display fields.
func activityFromSummary(athleteID int64, s strava.SummaryActivity) dbpkg.Activity {
	startDate, err := time.Parse(time.RFC3339, s.StartDate)
	if err != nil {
		log.Printf("sync: unparseable start_date %q on activity %d", s.StartDate, s.ID)
	}

	sportType := s.SportType
	if sportType == "" {
		sportType = s.Type
	}

	act := dbpkg.Activity{
		ActivityID: s.ID,
		AthleteID:  athleteID,
		Name:       s.Name,
		Type:       sportType,
		StartDate:  startDate,
		Timezone:   s.Timezone,
		ExternalID: s.ExternalID,

		Distance:      s.Distance,
		MovingTime:    s.MovingTime,
		ElapsedTime:   s.ElapsedTime,
		ElevationGain: s.TotalElevationGain,
		AverageSpeed:  s.AverageSpeed,
		MaxSpeed:      s.MaxSpeed,

		AverageHeartRate: s.AverageHeartRate,
		MaxHeartRate:     s.MaxHeartRate,
		SufferScore:      s.SufferScore,

		MovingTimeDisplay:  units.FormatHMS(s.MovingTime),
		ElapsedTimeDisplay: units.FormatHMS(s.ElapsedTime),
	}

	miles := units.MetersToMiles(s.Distance)
	act.DistanceMiles = &miles
	feet := units.MetersToFeet(s.TotalElevationGain)
	act.ElevationFeet = &feet
	if pace, ok := units.SpeedToPaceMinMi(s.AverageSpeed); ok {
		act.AveragePaceMinMi = &pace
	}
	if pace, ok := units.SpeedToPaceMinMi(s.MaxSpeed); ok {
		act.MaxPaceMinMi = &pace
	}

	return act
}
