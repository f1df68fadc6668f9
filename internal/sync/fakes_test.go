package sync

import (
	"context"
	"sort"
	stdsync "sync"
	"time"

	dbpkg "stridesync/internal/db"
	"stridesync/internal/strava"
)

type fakeTokens struct {
	token      string
	validErr   error
	forceErr   error
	validCalls int
	forceCalls int
}

func (t *fakeTokens) ValidToken(_ context.Context, _ int64) (string, error) {
	t.validCalls++
	if t.validErr != nil {
		return "", t.validErr
	}
	return t.token, nil
}

func (t *fakeTokens) ForceRefresh(_ context.Context, _ int64) (string, error) {
	t.forceCalls++
	if t.forceErr != nil {
		return "", t.forceErr
	}
	t.token = t.token + "+refreshed"
	return t.token, nil
}

type fakeAPI struct {
	pages     [][]strava.SummaryActivity
	listErrs  []error // consumed per list call before serving pages
	listCalls int

	details    map[int64]*strava.DetailedActivity
	detailErrs map[int64][]error // consumed per call, then details served
	getCalls   int

	zones     map[int64][]strava.ZoneGroup
	zoneErrs  map[int64]error
	zoneCalls int
}

func (a *fakeAPI) ListActivities(_ context.Context, _ string, _, _ time.Time, page, _ int) ([]strava.SummaryActivity, error) {
	a.listCalls++
	if len(a.listErrs) > 0 {
		err := a.listErrs[0]
		a.listErrs = a.listErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	if page-1 < len(a.pages) {
		return a.pages[page-1], nil
	}
	return nil, nil
}

func (a *fakeAPI) GetActivity(_ context.Context, _ string, activityID int64) (*strava.DetailedActivity, error) {
	a.getCalls++
	if queue := a.detailErrs[activityID]; len(queue) > 0 {
		err := queue[0]
		a.detailErrs[activityID] = queue[1:]
		if err != nil {
			return nil, err
		}
	}
	if d, ok := a.details[activityID]; ok {
		return d, nil
	}
	return nil, &strava.APIError{StatusCode: 404, Body: "not found"}
}

func (a *fakeAPI) GetHRZones(_ context.Context, _ string, activityID int64) ([]strava.ZoneGroup, error) {
	a.zoneCalls++
	if err := a.zoneErrs[activityID]; err != nil {
		return nil, err
	}
	return a.zones[activityID], nil
}

type fakeActivityStore struct {
	mu   stdsync.Mutex
	byID map[int64]*dbpkg.Activity

	upsertBatches int
	upsertErr     error
	markEnriched  []int64
	markFailed    []int64
}

func newFakeActivityStore() *fakeActivityStore {
	return &fakeActivityStore{byID: make(map[int64]*dbpkg.Activity)}
}

func (s *fakeActivityStore) UpsertBatch(_ context.Context, activities []dbpkg.Activity) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.upsertErr != nil {
		return 0, s.upsertErr
	}
	s.upsertBatches++
	for _, a := range activities {
		a := a
		if existing, ok := s.byID[a.ActivityID]; ok {
			// Enrichment markers survive re-ingest, like the real
			// upsert column list.
			a.EnrichedAt = existing.EnrichedAt
			a.EnrichFailed = existing.EnrichFailed
		}
		s.byID[a.ActivityID] = &a
	}
	return len(activities), nil
}

func (s *fakeActivityStore) Get(_ context.Context, activityID int64) (*dbpkg.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byID[activityID]
	if !ok {
		return nil, nil
	}
	c := *a
	return &c, nil
}

func (s *fakeActivityStore) KnownIDs(_ context.Context, ids []int64) (map[int64]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	known := make(map[int64]bool)
	for _, id := range ids {
		if _, ok := s.byID[id]; ok {
			known[id] = true
		}
	}
	return known, nil
}

func (s *fakeActivityStore) Unenriched(_ context.Context, athleteID int64, limit int) ([]dbpkg.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []dbpkg.Activity
	for _, a := range s.byID {
		if a.AthleteID == athleteID && a.EnrichedAt == nil && !a.EnrichFailed {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.After(out[j].StartDate) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeActivityStore) MarkEnriched(_ context.Context, activityID int64, fields dbpkg.EnrichedFields, enrichedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byID[activityID]
	if !ok {
		return nil
	}
	a.Calories = fields.Calories
	a.SufferScore = fields.SufferScore
	a.HRZone1Pct = fields.HRZonePcts[0]
	a.HRZone2Pct = fields.HRZonePcts[1]
	a.HRZone3Pct = fields.HRZonePcts[2]
	a.HRZone4Pct = fields.HRZonePcts[3]
	a.HRZone5Pct = fields.HRZonePcts[4]
	a.DistanceMiles = fields.DistanceMiles
	a.AveragePaceMinMi = fields.AveragePaceMinMi
	a.RawDetail = fields.RawDetail
	at := enrichedAt
	a.EnrichedAt = &at
	s.markEnriched = append(s.markEnriched, activityID)
	return nil
}

func (s *fakeActivityStore) MarkFailed(_ context.Context, activityID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.byID[activityID]; ok {
		a.EnrichFailed = true
	}
	s.markFailed = append(s.markFailed, activityID)
	return nil
}

type fakeSplitStore struct {
	byActivity map[int64][]dbpkg.Split
	replaceErr error
}

func newFakeSplitStore() *fakeSplitStore {
	return &fakeSplitStore{byActivity: make(map[int64][]dbpkg.Split)}
}

func (s *fakeSplitStore) ReplaceForActivity(_ context.Context, activityID int64, splits []dbpkg.Split) error {
	if s.replaceErr != nil {
		return s.replaceErr
	}
	s.byActivity[activityID] = splits
	return nil
}

// noSleep replaces the pacing/backoff sleeps in tests.
func noSleep(_ context.Context, _ time.Duration) error { return nil }
