package middleware

import (
	"bytes"
	"encoding/base64"
	"log"
	"strings"

	"github.com/valyala/fasthttp"
	"golang.org/x/crypto/bcrypt"

	"stridesync/internal/config"
	httpctx "stridesync/internal/http/ctx"
)

// AdminAuth returns middleware enforcing HTTP Basic auth against the
// configured admin credentials. The password is hashed once at
// construction so per-request comparison goes through bcrypt.
func AdminAuth(cfg *config.Config) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.AdminPassword), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("hash admin password: %v", err)
	}

	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			auth := ctx.Request.Header.Peek("Authorization")

			const prefix = "Basic "
			if !bytes.HasPrefix(auth, []byte(prefix)) {
				unauthorized(ctx)
				return
			}

			decoded, err := base64.StdEncoding.DecodeString(string(auth[len(prefix):]))
			if err != nil {
				unauthorized(ctx)
				return
			}

			user, pass, ok := strings.Cut(string(decoded), ":")
			if !ok || user != cfg.AdminUser {
				unauthorized(ctx)
				return
			}
			if bcrypt.CompareHashAndPassword(hash, []byte(pass)) != nil {
				unauthorized(ctx)
				return
			}

			httpctx.SetAdminUser(ctx, user)
			next(ctx)
		}
	}
}

func unauthorized(ctx *fasthttp.RequestCtx) {
	ctx.Response.Header.Set("WWW-Authenticate", `Basic realm="stridesync"`)
	ctx.SetStatusCode(fasthttp.StatusUnauthorized)
	ctx.SetBodyString("unauthorized")
}
