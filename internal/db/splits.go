package db

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SplitStore persists lap rows keyed on (activity_id, lap_index).
type SplitStore struct {
	db *gorm.DB
}

func NewSplitStore(db *gorm.DB) *SplitStore {
	return &SplitStore{db: db}
}

// ReplaceForActivity upserts the full lap set for one enrichment pass.
// Writing on the natural key means a re-run overwrites rather than
// accumulates; laps the provider no longer reports past the new count
// are removed so no stale tail survives.
func (s *SplitStore) ReplaceForActivity(ctx context.Context, activityID int64, splits []Split) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(splits) > 0 {
			err := tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "activity_id"}, {Name: "lap_index"}},
				DoUpdates: clause.AssignmentColumns([]string{
					"distance", "elapsed_time", "moving_time",
					"average_speed", "max_speed", "start_index", "end_index",
					"average_heart_rate", "pace_zone",
					"distance_miles", "pace_min_mi",
					"moving_time_display", "elapsed_time_display", "updated_at",
				}),
			}).Create(&splits).Error
			if err != nil {
				return err
			}
		}
		// Lap indexes are 1-based; everything past the new count is stale.
		return tx.Where("activity_id = ? AND lap_index > ?", activityID, len(splits)).
			Delete(&Split{}).Error
	})
}

// ForActivity returns the stored laps for one activity in lap order.
func (s *SplitStore) ForActivity(ctx context.Context, activityID int64) ([]Split, error) {
	var splits []Split
	err := s.db.WithContext(ctx).
		Where("activity_id = ?", activityID).
		Order("lap_index ASC").
		Find(&splits).Error
	if err != nil {
		return nil, err
	}
	return splits, nil
}
