package handlers

import (
	"context"
	"errors"
	"log"
	"strconv"

	"github.com/valyala/fasthttp"

	"stridesync/internal/config"
	syncpkg "stridesync/internal/sync"
	"stridesync/internal/token"
)

// TriggerSync runs the full pipeline for one athlete on demand.
// POST /v1/sync?athlete_id=NNN
func TriggerSync(p *syncpkg.Pipeline, cfg *config.Config) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		athleteID, err := strconv.ParseInt(string(ctx.QueryArgs().Peek("athlete_id")), 10, 64)
		if err != nil || athleteID <= 0 {
			writeError(ctx, fasthttp.StatusBadRequest, "missing or invalid athlete_id query parameter")
			return
		}

		runCtx, cancel := context.WithTimeout(ctx, cfg.RunTimeout)
		defer cancel()

		res, err := p.RunFull(runCtx, athleteID)
		if err != nil {
			log.Printf("triggered sync for athlete %d failed: %v", athleteID, err)
			switch {
			case errors.Is(err, token.ErrNoCredential):
				writeError(ctx, fasthttp.StatusNotFound, "athlete is not connected")
			case errors.Is(err, token.ErrRefreshFailed):
				writeError(ctx, fasthttp.StatusBadGateway, "token refresh rejected; reconnect the athlete")
			default:
				writeError(ctx, fasthttp.StatusBadGateway, "sync run failed")
			}
			return
		}

		writeJSON(ctx, fasthttp.StatusOK, res)
	}
}
