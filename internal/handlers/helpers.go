package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	xhttp "github.com/beaconblast/campaign-delivery/pkg/http"
)

const userIDHeader = "X-User-Id"

var errMissingUser = errors.New("missing or invalid " + userIDHeader + " header")

func readJSON(ctx *xhttp.RequestCtx, dst any) error {
	body := ctx.PostBody()
	return json.Unmarshal(body, dst)
}

func writeJSON(ctx *xhttp.RequestCtx, status int, v any) {
	b, _ := json.Marshal(v)
	ctx.Response.Header.Set("Content-Type", "application/json; charset=utf-8")
	ctx.Response.SetStatusCode(status)
	ctx.Response.SetBodyRaw(b)
}

func writeError(ctx *xhttp.RequestCtx, status int, msg string) {
	writeJSON(ctx, status, map[string]string{"error": msg})
}

func pathInt64(ctx *xhttp.RequestCtx, name string) (int64, error) {
	v, ok := ctx.UserValue(name).(string)
	if !ok {
		return 0, fmt.Errorf("missing path parameter %s", name)
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s %q", name, v)
	}
	return id, nil
}

func query(ctx *xhttp.RequestCtx, key string) string {
	return string(ctx.QueryArgs().Peek(key))
}

// queryInt64 returns 0 when the parameter is absent or not a number.
func queryInt64(ctx *xhttp.RequestCtx, key string) int64 {
	n, err := strconv.ParseInt(query(ctx, key), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func userID(ctx *xhttp.RequestCtx) (int64, error) {
	id, err := strconv.ParseInt(string(ctx.Request.Header.Peek(userIDHeader)), 10, 64)
	if err != nil || id <= 0 {
		return 0, errMissingUser
	}
	return id, nil
}
