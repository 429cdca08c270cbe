package xhttp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func route(r *Router, method, uri string) *RequestCtx {
	ctx := &RequestCtx{}
	ctx.Request.Header.SetMethod(method)
	ctx.Request.SetRequestURI(uri)
	r.Handler(ctx)
	return ctx
}

func TestCreateDefaultRouter(t *testing.T) {
	r := CreateDefaultRouter()
	r.GET("/track/open", func(ctx *RequestCtx) { ctx.SetStatusCode(StatusOK) })

	ctx := route(r, "GET", "/track/missing")
	assert.Equal(t, StatusNotFound, ctx.Response.StatusCode())
	assert.JSONEq(t, `{"error":"Not Found"}`, string(ctx.Response.Body()))

	ctx = route(r, "POST", "/track/open")
	assert.Equal(t, StatusMethodNotAllowed, ctx.Response.StatusCode())

	// no redirect for a trailing slash
	ctx = route(r, "GET", "/track/open/")
	assert.Equal(t, StatusNotFound, ctx.Response.StatusCode())

	assert.Equal(t, StatusOK, route(r, "GET", "/track/open").Response.StatusCode())
}
