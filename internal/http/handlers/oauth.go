package handlers

import (
	"fmt"
	"log"

	"github.com/valyala/fasthttp"
	"golang.org/x/oauth2"

	"stridesync/internal/config"
	dbpkg "stridesync/internal/db"
	"stridesync/internal/strava"
)

const authorizeURL = "https://www.strava.com/oauth/authorize"

func oauthConfig(cfg *config.Config) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     cfg.StravaClientID,
		ClientSecret: cfg.StravaClientSecret,
		RedirectURL:  cfg.StravaRedirectURL,
		Scopes:       []string{"read,activity:read_all"},
		Endpoint: oauth2.Endpoint{
			AuthURL:  authorizeURL,
			TokenURL: strava.DefaultTokenURL,
		},
	}
}

// OAuthConnect redirects the browser to the provider's authorization page.
func OAuthConnect(cfg *config.Config) fasthttp.RequestHandler {
	conf := oauthConfig(cfg)
	return func(ctx *fasthttp.RequestCtx) {
		url := conf.AuthCodeURL("stridesync", oauth2.SetAuthURLParam("approval_prompt", "auto"))
		ctx.Redirect(url, fasthttp.StatusSeeOther)
	}
}

// OAuthCallback exchanges the authorization code for tokens and stores
// the resulting credential for the athlete.
func OAuthCallback(client *strava.Client, creds *dbpkg.CredentialStore) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		if errParam := string(ctx.QueryArgs().Peek("error")); errParam != "" {
			writeError(ctx, fasthttp.StatusBadRequest, "authorization denied: "+errParam)
			return
		}

		code := string(ctx.QueryArgs().Peek("code"))
		if code == "" {
			writeError(ctx, fasthttp.StatusBadRequest, "missing code query parameter")
			return
		}

		tok, err := client.Exchange(ctx, code)
		if err != nil {
			log.Printf("oauth exchange failed: %v", err)
			writeError(ctx, fasthttp.StatusBadGateway, "token exchange failed")
			return
		}

		cred := &dbpkg.Credential{
			AthleteID:    tok.Athlete.ID,
			AccessToken:  tok.AccessToken,
			RefreshToken: tok.RefreshToken,
			ExpiresAt:    tok.ExpiresAt,
		}
		if err := creds.Upsert(ctx, cred); err != nil {
			log.Printf("store credential for athlete %d: %v", tok.Athlete.ID, err)
			writeError(ctx, fasthttp.StatusInternalServerError, "failed to store credential")
			return
		}

		ctx.SetContentType("text/plain; charset=utf-8")
		ctx.SetBodyString(fmt.Sprintf("connected athlete %d\n", tok.Athlete.ID))
	}
}
