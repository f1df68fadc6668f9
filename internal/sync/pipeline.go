package sync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"stridesync/internal/token"
)

// Result is the aggregate outcome of one full run.
type Result struct {
	Synced   int `json:"synced"`
	Enriched int `json:"enriched"`
}

// Pipeline is the top-level entry point: ingestion of recent
// activities followed by one enrichment batch. Safe to re-run; with no
// new remote data a run yields {0, 0}.
type Pipeline struct {
	tokens   TokenSource
	ingestor *Ingestor
	enricher *Enricher

	LookbackDays  int
	MaxActivities int
	BatchSize     int
}

func NewPipeline(tokens TokenSource, ingestor *Ingestor, enricher *Enricher) *Pipeline {
	return &Pipeline{
		tokens:   tokens,
		ingestor: ingestor,
		enricher: enricher,

		LookbackDays:  30,
		MaxActivities: 200,
		BatchSize:     10,
	}
}

// RunFull synchronizes the athlete's recent history and enriches one
// batch of the backlog. The run fails only when the athlete-level
// precondition cannot be met (no credential, refresh rejected);
// provider trouble during ingestion degrades to a partial result.
func (p *Pipeline) RunFull(ctx context.Context, athleteID int64) (Result, error) {
	var res Result

	// Credential precondition: fail the whole run up front rather than
	// partway through a page loop.
	if _, err := p.tokens.ValidToken(ctx, athleteID); err != nil {
		recordRun("credential_error")
		return res, err
	}

	after := time.Now().AddDate(0, 0, -p.LookbackDays)
	synced, err := p.ingestor.IngestNew(ctx, athleteID, after, time.Time{}, p.MaxActivities)
	res.Synced = synced
	if err != nil {
		if errors.Is(err, token.ErrNoCredential) || errors.Is(err, token.ErrRefreshFailed) {
			recordRun("credential_error")
			return res, err
		}
		if ctx.Err() != nil {
			recordRun("cancelled")
			return res, err
		}
		// Partial ingest: keep what we got and still run enrichment.
		log.Printf("sync: ingestion for athlete %d incomplete: %v", athleteID, err)
	}

	enriched, err := p.enricher.RunBatch(ctx, athleteID, p.BatchSize)
	res.Enriched = enriched
	if err != nil {
		if errors.Is(err, token.ErrNoCredential) || errors.Is(err, token.ErrRefreshFailed) {
			recordRun("credential_error")
			return res, err
		}
		recordRun("error")
		return res, fmt.Errorf("sync: enrichment batch: %w", err)
	}

	recordRun("ok")
	log.Printf("sync: athlete %d run complete: %d synced, %d enriched", athleteID, res.Synced, res.Enriched)
	return res, nil
}

// AthleteLister yields the athletes the scheduled worker should sync.
type AthleteLister interface {
	AthleteIDs(ctx context.Context) ([]int64, error)
}

// StartSyncWorker launches a background goroutine that runs the full
// pipeline for every known athlete once at startup and then once per
// interval, until the context is cancelled.
func StartSyncWorker(ctx context.Context, p *Pipeline, athletes AthleteLister, interval time.Duration) {
	go func() {
		runAll(ctx, p, athletes)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				runAll(ctx, p, athletes)
			}
		}
	}()
}

func runAll(ctx context.Context, p *Pipeline, athletes AthleteLister) {
	ids, err := athletes.AthleteIDs(ctx)
	if err != nil {
		log.Printf("sync worker: list athletes: %v", err)
		return
	}
	for _, id := range ids {
		if ctx.Err() != nil {
			return
		}
		if _, err := p.RunFull(ctx, id); err != nil {
			log.Printf("sync worker: athlete %d: %v", id, err)
		}
	}
}
