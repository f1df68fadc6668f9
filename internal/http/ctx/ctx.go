package ctx

import (
	"github.com/valyala/fasthttp"
)

const AdminUserKey = "adminUser"

func SetAdminUser(ctx *fasthttp.RequestCtx, username string) {
	ctx.SetUserValue(AdminUserKey, username)
}

func AdminUserFromCtx(ctx *fasthttp.RequestCtx) (string, bool) {
	v := ctx.UserValue(AdminUserKey)
	if v == nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}
