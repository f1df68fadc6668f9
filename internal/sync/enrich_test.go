package sync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dbpkg "stridesync/internal/db"
	"stridesync/internal/strava"
	"stridesync/internal/token"
)

func storedActivity(store *fakeActivityStore, athleteID, activityID int64, start time.Time) {
	store.byID[activityID] = &dbpkg.Activity{
		ActivityID: activityID,
		AthleteID:  athleteID,
		Type:       "Run",
		StartDate:  start,
	}
}

func detailFor(id int64) *strava.DetailedActivity {
	d := &strava.DetailedActivity{
		Calories: 420,
		Laps: []strava.Lap{
			{LapIndex: 1, Distance: 1609.344, ElapsedTime: 500, MovingTime: 480, AverageSpeed: 3.35},
			{LapIndex: 2, Distance: 1609.344, ElapsedTime: 510, MovingTime: 490, AverageSpeed: 3.28},
		},
	}
	d.ID = id
	d.Distance = 3218.688
	d.MovingTime = 970
	d.ElapsedTime = 1010
	d.AverageSpeed = 3.31
	d.SufferScore = 55
	return d
}

func hrZones(times ...float64) []strava.ZoneGroup {
	buckets := make([]strava.ZoneBucket, len(times))
	for i, t := range times {
		buckets[i].Time = t
	}
	return []strava.ZoneGroup{
		{Type: "pace", DistributionBuckets: []strava.ZoneBucket{{Time: 999}}},
		{Type: "heartrate", DistributionBuckets: buckets},
	}
}

func newTestEnricher(api *fakeAPI, store *fakeActivityStore, splits *fakeSplitStore, tokens TokenSource) *Enricher {
	if tokens == nil {
		tokens = &fakeTokens{token: "tok"}
	}
	e := NewEnricher(tokens, api, store, splits)
	e.sleep = noSleep
	return e
}

func TestEnrichOne_Success(t *testing.T) {
	store := newFakeActivityStore()
	storedActivity(store, 9, 100, time.Now())
	api := &fakeAPI{
		details: map[int64]*strava.DetailedActivity{100: detailFor(100)},
		zones:   map[int64][]strava.ZoneGroup{100: hrZones(100, 200, 400, 200, 100)},
	}
	splits := newFakeSplitStore()
	e := newTestEnricher(api, store, splits, nil)

	outcome, err := e.EnrichOne(context.Background(), 9, 100)
	require.NoError(t, err)
	assert.Equal(t, OutcomeEnriched, outcome)

	row := store.byID[100]
	require.NotNil(t, row.EnrichedAt)
	assert.Equal(t, 420.0, row.Calories)
	assert.Equal(t, 10.0, row.HRZone1Pct)
	assert.Equal(t, 20.0, row.HRZone2Pct)
	assert.Equal(t, 40.0, row.HRZone3Pct)
	assert.Equal(t, 20.0, row.HRZone4Pct)
	assert.Equal(t, 10.0, row.HRZone5Pct)
	assert.NotEmpty(t, row.RawDetail)

	laps := splits.byActivity[100]
	require.Len(t, laps, 2)
	assert.Equal(t, 1, laps[0].LapIndex)
	require.NotNil(t, laps[0].DistanceMiles)
	assert.Equal(t, 1.0, *laps[0].DistanceMiles)
	assert.Equal(t, "8:00", laps[0].MovingTimeDisplay)
}

func TestEnrichOne_AlreadyEnrichedMakesNoRemoteCalls(t *testing.T) {
	store := newFakeActivityStore()
	storedActivity(store, 9, 100, time.Now())
	now := time.Now()
	store.byID[100].EnrichedAt = &now

	api := &fakeAPI{}
	tokens := &fakeTokens{token: "tok"}
	e := newTestEnricher(api, store, newFakeSplitStore(), tokens)

	outcome, err := e.EnrichOne(context.Background(), 9, 100)
	require.NoError(t, err)
	assert.Equal(t, OutcomeEnriched, outcome)
	assert.Zero(t, api.getCalls)
	assert.Zero(t, api.zoneCalls)
	assert.Zero(t, tokens.validCalls)
}

func TestEnrichOne_RateLimitedIsRetry(t *testing.T) {
	store := newFakeActivityStore()
	storedActivity(store, 9, 100, time.Now())
	api := &fakeAPI{detailErrs: map[int64][]error{100: {strava.ErrRateLimitExceeded}}}
	e := newTestEnricher(api, store, newFakeSplitStore(), nil)

	outcome, err := e.EnrichOne(context.Background(), 9, 100)
	require.NoError(t, err)
	assert.Equal(t, OutcomeRetry, outcome)
	assert.Empty(t, store.markFailed)
}

func TestEnrichOne_TerminalClientErrormarksAndSkips(t *testing.T) {
	store := newFakeActivityStore()
	storedActivity(store, 9, 100, time.Now())
	api := &fakeAPI{detailErrs: map[int64][]error{100: {&strava.APIError{StatusCode: 403, Body: "private"}}}}
	e := newTestEnricher(api, store, newFakeSplitStore(), nil)

	outcome, err := e.EnrichOne(context.Background(), 9, 100)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, outcome)
	assert.Equal(t, []int64{100}, store.markFailed)
	assert.True(t, store.byID[100].EnrichFailed)
}

func TestEnrichOne_401RefreshesAndRetriesOnce(t *testing.T) {
	store := newFakeActivityStore()
	storedActivity(store, 9, 100, time.Now())
	api := &fakeAPI{
		details:    map[int64]*strava.DetailedActivity{100: detailFor(100)},
		detailErrs: map[int64][]error{100: {strava.ErrUnauthorized}},
	}
	tokens := &fakeTokens{token: "tok"}
	e := newTestEnricher(api, store, newFakeSplitStore(), tokens)

	outcome, err := e.EnrichOne(context.Background(), 9, 100)
	require.NoError(t, err)
	assert.Equal(t, OutcomeEnriched, outcome)
	assert.Equal(t, 1, tokens.forceCalls)
	assert.Equal(t, 2, api.getCalls)
}

func TestEnrichOne_401ThenTerminalMarksFailed(t *testing.T) {
	store := newFakeActivityStore()
	storedActivity(store, 9, 100, time.Now())
	api := &fakeAPI{
		detailErrs: map[int64][]error{100: {
			strava.ErrUnauthorized,
			&strava.APIError{StatusCode: 404, Body: "gone"},
		}},
	}
	e := newTestEnricher(api, store, newFakeSplitStore(), nil)

	outcome, err := e.EnrichOne(context.Background(), 9, 100)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, outcome)
	assert.True(t, store.byID[100].EnrichFailed)
}

func TestEnrichOne_RefreshFailurePropagates(t *testing.T) {
	store := newFakeActivityStore()
	storedActivity(store, 9, 100, time.Now())
	api := &fakeAPI{detailErrs: map[int64][]error{100: {strava.ErrUnauthorized}}}
	tokens := &fakeTokens{token: "tok", forceErr: token.ErrRefreshFailed}
	e := newTestEnricher(api, store, newFakeSplitStore(), tokens)

	_, err := e.EnrichOne(context.Background(), 9, 100)
	assert.ErrorIs(t, err, token.ErrRefreshFailed)
}

func TestEnrichOne_MissingHRDataDefaultsToZero(t *testing.T) {
	store := newFakeActivityStore()
	storedActivity(store, 9, 100, time.Now())
	api := &fakeAPI{
		details: map[int64]*strava.DetailedActivity{100: detailFor(100)},
		// No zones entry: provider returned nothing for this activity.
	}
	e := newTestEnricher(api, store, newFakeSplitStore(), nil)

	outcome, err := e.EnrichOne(context.Background(), 9, 100)
	require.NoError(t, err)
	assert.Equal(t, OutcomeEnriched, outcome)

	row := store.byID[100]
	assert.Zero(t, row.HRZone1Pct)
	assert.Zero(t, row.HRZone5Pct)
	require.NotNil(t, row.EnrichedAt)
}

func TestEnrichOne_SplitStoreFailurePropagates(t *testing.T) {
	store := newFakeActivityStore()
	storedActivity(store, 9, 100, time.Now())
	api := &fakeAPI{details: map[int64]*strava.DetailedActivity{100: detailFor(100)}}
	splits := newFakeSplitStore()
	splits.replaceErr = assert.AnError
	e := newTestEnricher(api, store, splits, nil)

	_, err := e.EnrichOne(context.Background(), 9, 100)
	require.Error(t, err)
	assert.Nil(t, store.byID[100].EnrichedAt)
}

func TestZonePercents(t *testing.T) {
	pcts := zonePercents(hrZones(300, 300, 200, 150, 50))
	assert.Equal(t, [5]float64{30, 30, 20, 15, 5}, pcts)

	for _, p := range pcts {
		assert.GreaterOrEqual(t, p, 0.0)
		assert.LessOrEqual(t, p, 100.0)
	}

	// Degenerate inputs all default to zeros.
	assert.Equal(t, [5]float64{}, zonePercents(nil))
	assert.Equal(t, [5]float64{}, zonePercents(hrZones(0, 0, 0, 0, 0)))
	assert.Equal(t, [5]float64{}, zonePercents([]strava.ZoneGroup{{Type: "pace"}}))
}

func TestZonePercents_Rounding(t *testing.T) {
	pcts := zonePercents(hrZones(1, 1, 1, 0, 0))
	assert.Equal(t, 33.3, pcts[0])
	assert.Equal(t, 33.3, pcts[1])
	assert.Equal(t, 33.3, pcts[2])
}

func TestRunBatch_PartialFailureIsolation(t *testing.T) {
	store := newFakeActivityStore()
	base := time.Now()
	for i := int64(1); i <= 3; i++ {
		storedActivity(store, 9, i, base.Add(-time.Duration(i)*time.Hour))
	}
	api := &fakeAPI{
		details: map[int64]*strava.DetailedActivity{
			1: detailFor(1),
			3: detailFor(3),
		},
		detailErrs: map[int64][]error{2: {&strava.APIError{StatusCode: 403, Body: "private"}}},
	}
	e := newTestEnricher(api, store, newFakeSplitStore(), nil)

	enriched, err := e.RunBatch(context.Background(), 9, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, enriched)
	assert.Equal(t, []int64{2}, store.markFailed)
}

func TestRunBatch_StubbornActivityGivesUpAfterBound(t *testing.T) {
	store := newFakeActivityStore()
	storedActivity(store, 9, 1, time.Now())
	storedActivity(store, 9, 2, time.Now().Add(-time.Hour))

	// Activity 1 is rate limited on every attempt; 2 succeeds.
	errs := make([]error, 10)
	for i := range errs {
		errs[i] = strava.ErrRateLimitExceeded
	}
	api := &fakeAPI{
		details:    map[int64]*strava.DetailedActivity{2: detailFor(2)},
		detailErrs: map[int64][]error{1: errs},
	}

	var slept []time.Duration
	e := newTestEnricher(api, store, newFakeSplitStore(), nil)
	e.MaxAttempts = 3
	e.RetryBase = 2 * time.Second
	e.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	enriched, err := e.RunBatch(context.Background(), 9, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, enriched)
	// Activity 1 stays unenriched but unmarked; a later batch may retry it.
	assert.Nil(t, store.byID[1].EnrichedAt)
	assert.False(t, store.byID[1].EnrichFailed)
	// Increasing retry sleeps (2s, 4s) for activity 1, then the pacing
	// sleep after activity 2.
	require.Len(t, slept, 3)
	assert.Equal(t, 2*time.Second, slept[0])
	assert.Equal(t, 4*time.Second, slept[1])
	assert.Equal(t, e.Pacing, slept[2])
}

func TestRunBatch_NewestFirstSelection(t *testing.T) {
	store := newFakeActivityStore()
	old := time.Now().Add(-48 * time.Hour)
	recent := time.Now()
	storedActivity(store, 9, 1, old)
	storedActivity(store, 9, 2, recent)
	api := &fakeAPI{details: map[int64]*strava.DetailedActivity{
		1: detailFor(1),
		2: detailFor(2),
	}}
	e := newTestEnricher(api, store, newFakeSplitStore(), nil)

	enriched, err := e.RunBatch(context.Background(), 9, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, enriched)
	assert.Equal(t, []int64{2}, store.markEnriched)
}

func TestRunBatch_NoCredentialAborts(t *testing.T) {
	store := newFakeActivityStore()
	storedActivity(store, 9, 1, time.Now())
	tokens := &fakeTokens{validErr: token.ErrNoCredential}
	e := newTestEnricher(&fakeAPI{}, store, newFakeSplitStore(), tokens)

	_, err := e.RunBatch(context.Background(), 9, 10)
	assert.ErrorIs(t, err, token.ErrNoCredential)
}

func TestRunBatch_ContextCancelledBetweenActivities(t *testing.T) {
	store := newFakeActivityStore()
	storedActivity(store, 9, 1, time.Now())
	e := newTestEnricher(&fakeAPI{details: map[int64]*strava.DetailedActivity{1: detailFor(1)}}, store, newFakeSplitStore(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.RunBatch(ctx, 9, 10)
	assert.ErrorIs(t, err, context.Canceled)
}
