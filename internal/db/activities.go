package db

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// activityUpsertColumns are the columns overwritten when re-ingesting a
// row that already exists. The natural key and the enrichment markers
// are deliberately left alone so a re-ingest never un-enriches a row.
var activityUpsertColumns = []string{
	"athlete_id", "name", "type", "start_date", "timezone", "external_id",
	"distance", "moving_time", "elapsed_time", "elevation_gain",
	"average_speed", "max_speed", "average_heart_rate", "max_heart_rate",
	"distance_miles", "elevation_feet", "average_pace_min_mi", "max_pace_min_mi",
	"moving_time_display", "elapsed_time_display", "updated_at",
}

// ActivityStore persists activities keyed on the provider activity id.
type ActivityStore struct {
	db *gorm.DB
}

func NewActivityStore(db *gorm.DB) *ActivityStore {
	return &ActivityStore{db: db}
}

// UpsertBatch inserts the activities, overwriting the mutable listing
// columns of rows that already exist. Returns the number of rows sent.
func (s *ActivityStore) UpsertBatch(ctx context.Context, activities []Activity) (int, error) {
	if len(activities) == 0 {
		return 0, nil
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "activity_id"}},
		DoUpdates: clause.AssignmentColumns(activityUpsertColumns),
	}).Create(&activities).Error
	if err != nil {
		return 0, err
	}
	return len(activities), nil
}

// Get returns the activity with the given provider id, or nil.
func (s *ActivityStore) Get(ctx context.Context, activityID int64) (*Activity, error) {
	var act Activity
	err := s.db.WithContext(ctx).Where("activity_id = ?", activityID).First(&act).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &act, nil
}

// KnownIDs filters the given provider ids down to those already stored.
func (s *ActivityStore) KnownIDs(ctx context.Context, ids []int64) (map[int64]bool, error) {
	known := make(map[int64]bool, len(ids))
	if len(ids) == 0 {
		return known, nil
	}
	var existing []int64
	err := s.db.WithContext(ctx).Model(&Activity{}).
		Where("activity_id IN ?", ids).
		Pluck("activity_id", &existing).Error
	if err != nil {
		return nil, err
	}
	for _, id := range existing {
		known[id] = true
	}
	return known, nil
}

// Unenriched selects up to limit activities for the athlete that still
// need enrichment, newest first. Permanently failed rows are excluded.
func (s *ActivityStore) Unenriched(ctx context.Context, athleteID int64, limit int) ([]Activity, error) {
	var acts []Activity
	err := s.db.WithContext(ctx).
		Where("athlete_id = ? AND enriched_at IS NULL AND enrich_failed = ?", athleteID, false).
		Order("start_date DESC").
		Limit(limit).
		Find(&acts).Error
	if err != nil {
		return nil, err
	}
	return acts, nil
}

// Recent returns the most recently started activities for display.
func (s *ActivityStore) Recent(ctx context.Context, limit int) ([]Activity, error) {
	var acts []Activity
	err := s.db.WithContext(ctx).Order("start_date DESC").Limit(limit).Find(&acts).Error
	if err != nil {
		return nil, err
	}
	return acts, nil
}

// EnrichedFields is the set of columns written back by one enrichment pass.
type EnrichedFields struct {
	Calories    float64
	SufferScore float64

	AverageHeartRate float64
	MaxHeartRate     float64

	HRZonePcts [5]float64

	DistanceMiles      *float64
	ElevationFeet      *float64
	AveragePaceMinMi   *float64
	MaxPaceMinMi       *float64
	MovingTimeDisplay  string
	ElapsedTimeDisplay string

	RawDetail []byte
}

// MarkEnriched writes the derived fields onto the activity row and
// stamps enriched_at in a single update.
func (s *ActivityStore) MarkEnriched(ctx context.Context, activityID int64, fields EnrichedFields, enrichedAt time.Time) error {
	updates := map[string]interface{}{
		"calories":             fields.Calories,
		"suffer_score":         fields.SufferScore,
		"average_heart_rate":   fields.AverageHeartRate,
		"max_heart_rate":       fields.MaxHeartRate,
		"hr_zone1_pct":         fields.HRZonePcts[0],
		"hr_zone2_pct":         fields.HRZonePcts[1],
		"hr_zone3_pct":         fields.HRZonePcts[2],
		"hr_zone4_pct":         fields.HRZonePcts[3],
		"hr_zone5_pct":         fields.HRZonePcts[4],
		"distance_miles":       fields.DistanceMiles,
		"elevation_feet":       fields.ElevationFeet,
		"average_pace_min_mi":  fields.AveragePaceMinMi,
		"max_pace_min_mi":      fields.MaxPaceMinMi,
		"moving_time_display":  fields.MovingTimeDisplay,
		"elapsed_time_display": fields.ElapsedTimeDisplay,
		"raw_detail":           fields.RawDetail,
		"enriched_at":          enrichedAt,
	}
	return s.db.WithContext(ctx).Model(&Activity{}).
		Where("activity_id = ?", activityID).
		Updates(updates).Error
}

// MarkFailed flags the activity so batch selection skips it from now on.
func (s *ActivityStore) MarkFailed(ctx context.Context, activityID int64) error {
	return s.db.WithContext(ctx).Model(&Activity{}).
		Where("activity_id = ?", activityID).
		Update("enrich_failed", true).Error
}
