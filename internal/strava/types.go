// Package strava wraps the outbound calls to the Strava v3 API: the
// paginated activity listing, per-activity detail, heart-rate zone
// distribution, and the OAuth token endpoint. All read calls share one
// rate-limit-aware retry policy (see client.go).
package strava

// SummaryActivity is one entry of the athlete activity listing.
type SummaryActivity struct {
	ID                 int64   `json:"id"`
	Name               string  `json:"name"`
	Type               string  `json:"type"`
	SportType          string  `json:"sport_type"`
	StartDate          string  `json:"start_date"`
	Timezone           string  `json:"timezone"`
	ExternalID         string  `json:"external_id"`
	Distance           float64 `json:"distance"`
	MovingTime         int     `json:"moving_time"`
	ElapsedTime        int     `json:"elapsed_time"`
	TotalElevationGain float64 `json:"total_elevation_gain"`
	AverageSpeed       float64 `json:"average_speed"`
	MaxSpeed           float64 `json:"max_speed"`
	AverageHeartRate   float64 `json:"average_heartrate"`
	MaxHeartRate       float64 `json:"max_heartrate"`
	SufferScore        float64 `json:"suffer_score"`
}

// Lap is one lap of a detailed activity.
type Lap struct {
	LapIndex         int     `json:"lap_index"`
	Distance         float64 `json:"distance"`
	ElapsedTime      int     `json:"elapsed_time"`
	MovingTime       int     `json:"moving_time"`
	AverageSpeed     float64 `json:"average_speed"`
	MaxSpeed         float64 `json:"max_speed"`
	StartIndex       int     `json:"start_index"`
	EndIndex         int     `json:"end_index"`
	AverageHeartRate float64 `json:"average_heartrate"`
	PaceZone         int     `json:"pace_zone"`
}

// DetailedActivity is the full activity payload, including laps.
type DetailedActivity struct {
	SummaryActivity

	Description string  `json:"description"`
	Calories    float64 `json:"calories"`
	Laps        []Lap   `json:"laps"`
}

// ZoneBucket is one time bucket of a zone distribution.
type ZoneBucket struct {
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Time float64 `json:"time"`
}

// ZoneGroup is one zone distribution of an activity; the group with
// Type "heartrate" carries the five HR zone buckets.
type ZoneGroup struct {
	Type                string       `json:"type"`
	DistributionBuckets []ZoneBucket `json:"distribution_buckets"`
}

// TokenResponse is the provider's answer to a code exchange or a
// refresh-token grant.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    int64  `json:"expires_at"`
	ExpiresIn    int    `json:"expires_in"`
	Athlete      struct {
		ID int64 `json:"id"`
	} `json:"athlete"`
}
