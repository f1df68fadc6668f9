package handlers

import (
	"bytes"
	"fmt"
	"log"
	"math"

	"github.com/valyala/fasthttp"

	dbpkg "stridesync/internal/db"
	httpctx "stridesync/internal/http/ctx"
	"stridesync/internal/units"
	ui "stridesync/web"
)

type StatusData struct {
	Title    string
	Username string

	Athletes   []int64
	Weekly     []WeekRow
	Activities []ActivityRow
}

type WeekRow struct {
	WeekStart  string
	Count      int
	Miles      string
	MovingTime string
	Elevation  string
}

type ActivityRow struct {
	ActivityID int64
	Name       string
	Type       string
	Date       string
	Distance   string
	Pace       string
	MovingTime string
	Enriched   bool
}

// StatusPage renders the HTML overview: connected athletes, weekly
// totals for the first connected athlete and the latest activities.
func StatusPage(activities *dbpkg.ActivityStore, creds *dbpkg.CredentialStore) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		data := StatusData{Title: "stridesync"}
		if u, ok := httpctx.AdminUserFromCtx(ctx); ok {
			data.Username = u
		}

		athletes, err := creds.AthleteIDs(ctx)
		if err != nil {
			log.Printf("status: list athletes: %v", err)
			ctx.SetStatusCode(fasthttp.StatusInternalServerError)
			ctx.SetBodyString("database error")
			return
		}
		data.Athletes = athletes

		if len(athletes) > 0 {
			weekly, err := activities.WeeklyStats(ctx, athletes[0], 8)
			if err != nil {
				log.Printf("status: weekly stats for athlete %d: %v", athletes[0], err)
			}
			for _, w := range weekly {
				data.Weekly = append(data.Weekly, WeekRow{
					WeekStart:  w.WeekStart.Format("Jan 02"),
					Count:      w.ActivityCount,
					Miles:      fmt.Sprintf("%.1f mi", w.DistanceMiles),
					MovingTime: units.FormatHMS(w.MovingTime),
					Elevation:  fmt.Sprintf("%.0f ft", w.ElevationFeet),
				})
			}
		}

		recent, err := activities.Recent(ctx, 20)
		if err != nil {
			log.Printf("status: recent activities: %v", err)
			ctx.SetStatusCode(fasthttp.StatusInternalServerError)
			ctx.SetBodyString("database error")
			return
		}
		for i := range recent {
			a := &recent[i]
			row := ActivityRow{
				ActivityID: a.ActivityID,
				Name:       a.Name,
				Type:       a.Type,
				Date:       a.StartDate.Format("2006-01-02 15:04"),
				MovingTime: a.MovingTimeDisplay,
				Enriched:   a.EnrichedAt != nil,
			}
			if a.DistanceMiles != nil {
				row.Distance = fmt.Sprintf("%.2f mi", *a.DistanceMiles)
			}
			if a.AveragePaceMinMi != nil {
				row.Pace = formatPace(*a.AveragePaceMinMi)
			}
			data.Activities = append(data.Activities, row)
		}

		var buf bytes.Buffer
		if err := ui.Templates().ExecuteTemplate(&buf, "index.html", data); err != nil {
			log.Printf("status: render: %v", err)
			ctx.SetStatusCode(fasthttp.StatusInternalServerError)
			ctx.SetBodyString("template error")
			return
		}
		ctx.SetContentType("text/html; charset=utf-8")
		ctx.SetBody(buf.Bytes())
	}
}

// formatPace renders decimal minutes per mile as "M:SS /mi".
func formatPace(pace float64) string {
	total := int(math.Round(pace * 60))
	return fmt.Sprintf("%d:%02d /mi", total/60, total%60)
}
