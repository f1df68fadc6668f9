package db

import (
	"time"

	"gorm.io/datatypes"
)

// Credential holds the OAuth token pair for one athlete. There is at
// most one row per athlete; refreshes overwrite the row in place.
type Credential struct {
	ID uint `gorm:"primaryKey"`

	CreatedAt time.Time
	UpdatedAt time.Time

	// AthleteID is the provider-assigned athlete id.
	AthleteID int64 `gorm:"uniqueIndex;not null"`

	AccessToken  string `gorm:"size:255;not null"`
	RefreshToken string `gorm:"size:255;not null"`

	// ExpiresAt is the absolute expiry of AccessToken in epoch seconds,
	// exactly as reported by the provider's token endpoint.
	ExpiresAt int64 `gorm:"not null"`
}

// Activity is one recorded exercise session pulled from the provider.
// Ingestion creates the row from the listing payload; enrichment later
// fills in the heart-rate zone percentages and detail-only fields and
// stamps EnrichedAt.
type Activity struct {
	ID uint `gorm:"primaryKey"`

	CreatedAt time.Time
	UpdatedAt time.Time

	// ActivityID is the provider-assigned activity id (natural key).
	ActivityID int64 `gorm:"uniqueIndex;not null"`
	AthleteID  int64 `gorm:"index;not null"`

	Name       string    `gorm:"size:255"`
	Type       string    `gorm:"size:64;index"`
	StartDate  time.Time `gorm:"index"`
	Timezone   string    `gorm:"size:64"`
	ExternalID string    `gorm:"size:255"`

	// Raw metric fields in provider units (meters, seconds, m/s).
	Distance      float64
	MovingTime    int
	ElapsedTime   int
	ElevationGain float64
	AverageSpeed  float64
	MaxSpeed      float64

	AverageHeartRate float64
	MaxHeartRate     float64

	// Detail-only fields, populated by enrichment.
	Calories    float64
	SufferScore float64

	// Share of recorded heart-rate time per zone, 0-100 with one decimal.
	// All five stay 0 when the provider has no HR data for the activity.
	HRZone1Pct float64
	HRZone2Pct float64
	HRZone3Pct float64
	HRZone4Pct float64
	HRZone5Pct float64

	// Converted display fields. Nil when the source value is absent
	// (e.g. pace is undefined for zero speed).
	DistanceMiles      *float64
	ElevationFeet      *float64
	AveragePaceMinMi   *float64
	MaxPaceMinMi       *float64
	MovingTimeDisplay  string `gorm:"size:16"`
	ElapsedTimeDisplay string `gorm:"size:16"`

	// RawDetail keeps the full detail payload from the last enrichment
	// pass for debugging and later re-processing.
	RawDetail datatypes.JSON `gorm:"type:json"`

	// EnrichedAt marks enrichment completion; a non-nil value makes
	// further enrichment attempts a no-op.
	EnrichedAt *time.Time `gorm:"index"`

	// EnrichFailed marks activities whose enrichment hit a terminal
	// provider error. They are excluded from batch selection.
	EnrichFailed bool `gorm:"default:false"`

	Splits []Split `gorm:"foreignKey:ActivityID;references:ActivityID;constraint:OnDelete:CASCADE"`
}

// Split is one lap of an Activity. The full set of laps is replaced as
// a batch on every enrichment pass, upserted on (activity_id, lap_index).
type Split struct {
	ID uint `gorm:"primaryKey"`

	CreatedAt time.Time
	UpdatedAt time.Time

	ActivityID int64 `gorm:"uniqueIndex:idx_split_activity_lap,priority:1;not null"`
	LapIndex   int   `gorm:"uniqueIndex:idx_split_activity_lap,priority:2;not null"`

	Distance     float64
	ElapsedTime  int
	MovingTime   int
	AverageSpeed float64
	MaxSpeed     float64
	StartIndex   int
	EndIndex     int

	AverageHeartRate float64
	PaceZone         int

	DistanceMiles      *float64
	PaceMinMi          *float64
	MovingTimeDisplay  string `gorm:"size:16"`
	ElapsedTimeDisplay string `gorm:"size:16"`
}
