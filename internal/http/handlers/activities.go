package handlers

import (
	"log"
	"strconv"
	"time"

	"github.com/valyala/fasthttp"

	dbpkg "stridesync/internal/db"
)

type activityResponse struct {
	ActivityID int64     `json:"activity_id"`
	AthleteID  int64     `json:"athlete_id"`
	Name       string    `json:"name"`
	Type       string    `json:"type"`
	StartDate  time.Time `json:"start_date"`
	Timezone   string    `json:"timezone,omitempty"`

	DistanceMiles    *float64 `json:"distance_miles"`
	ElevationFeet    *float64 `json:"elevation_feet"`
	AveragePaceMinMi *float64 `json:"average_pace_min_mi"`
	MaxPaceMinMi     *float64 `json:"max_pace_min_mi"`
	MovingTime       string   `json:"moving_time"`
	ElapsedTime      string   `json:"elapsed_time"`

	AverageHeartRate float64 `json:"average_heart_rate,omitempty"`
	MaxHeartRate     float64 `json:"max_heart_rate,omitempty"`
	Calories         float64 `json:"calories,omitempty"`
	SufferScore      float64 `json:"suffer_score,omitempty"`

	HRZonePercents [5]float64 `json:"hr_zone_percents"`

	Enriched   bool       `json:"enriched"`
	EnrichedAt *time.Time `json:"enriched_at,omitempty"`
}

type splitResponse struct {
	LapIndex      int      `json:"lap_index"`
	DistanceMiles *float64 `json:"distance_miles"`
	PaceMinMi     *float64 `json:"pace_min_mi"`
	MovingTime    string   `json:"moving_time"`
	ElapsedTime   string   `json:"elapsed_time"`

	AverageHeartRate float64 `json:"average_heart_rate,omitempty"`
	PaceZone         int     `json:"pace_zone,omitempty"`
}

type activityDetailResponse struct {
	activityResponse
	Splits []splitResponse `json:"splits"`
}

func toActivityResponse(a *dbpkg.Activity) activityResponse {
	return activityResponse{
		ActivityID: a.ActivityID,
		AthleteID:  a.AthleteID,
		Name:       a.Name,
		Type:       a.Type,
		StartDate:  a.StartDate,
		Timezone:   a.Timezone,

		DistanceMiles:    a.DistanceMiles,
		ElevationFeet:    a.ElevationFeet,
		AveragePaceMinMi: a.AveragePaceMinMi,
		MaxPaceMinMi:     a.MaxPaceMinMi,
		MovingTime:       a.MovingTimeDisplay,
		ElapsedTime:      a.ElapsedTimeDisplay,

		AverageHeartRate: a.AverageHeartRate,
		MaxHeartRate:     a.MaxHeartRate,
		Calories:         a.Calories,
		SufferScore:      a.SufferScore,

		HRZonePercents: [5]float64{a.HRZone1Pct, a.HRZone2Pct, a.HRZone3Pct, a.HRZone4Pct, a.HRZone5Pct},

		Enriched:   a.EnrichedAt != nil,
		EnrichedAt: a.EnrichedAt,
	}
}

// ListActivities returns the most recent synced activities.
// GET /v1/activities?limit=N
func ListActivities(activities *dbpkg.ActivityStore) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		limit := 50
		if v := string(ctx.QueryArgs().Peek("limit")); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 || n > 500 {
				writeError(ctx, fasthttp.StatusBadRequest, "invalid limit query parameter")
				return
			}
			limit = n
		}

		rows, err := activities.Recent(ctx, limit)
		if err != nil {
			log.Printf("list activities: %v", err)
			writeError(ctx, fasthttp.StatusInternalServerError, "database error")
			return
		}

		out := make([]activityResponse, 0, len(rows))
		for i := range rows {
			out = append(out, toActivityResponse(&rows[i]))
		}
		writeJSON(ctx, fasthttp.StatusOK, out)
	}
}

// ActivityDetail returns one activity together with its lap splits.
// GET /v1/activities/{id}
func ActivityDetail(activities *dbpkg.ActivityStore, splits *dbpkg.SplitStore) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		raw, _ := ctx.UserValue("id").(string)
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			writeError(ctx, fasthttp.StatusBadRequest, "invalid activity id")
			return
		}

		activity, err := activities.Get(ctx, id)
		if err != nil {
			log.Printf("load activity %d: %v", id, err)
			writeError(ctx, fasthttp.StatusInternalServerError, "database error")
			return
		}
		if activity == nil {
			writeError(ctx, fasthttp.StatusNotFound, "activity not found")
			return
		}

		laps, err := splits.ForActivity(ctx, id)
		if err != nil {
			log.Printf("load splits for activity %d: %v", id, err)
			writeError(ctx, fasthttp.StatusInternalServerError, "database error")
			return
		}

		resp := activityDetailResponse{
			activityResponse: toActivityResponse(activity),
			Splits:           make([]splitResponse, 0, len(laps)),
		}
		for _, s := range laps {
			resp.Splits = append(resp.Splits, splitResponse{
				LapIndex:         s.LapIndex,
				DistanceMiles:    s.DistanceMiles,
				PaceMinMi:        s.PaceMinMi,
				MovingTime:       s.MovingTimeDisplay,
				ElapsedTime:      s.ElapsedTimeDisplay,
				AverageHeartRate: s.AverageHeartRate,
				PaceZone:         s.PaceZone,
			})
		}
		writeJSON(ctx, fasthttp.StatusOK, resp)
	}
}
