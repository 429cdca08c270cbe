package handlers

import (
	xhttp "github.com/beaconblast/campaign-delivery/pkg/http"
)

// setupTestContext builds a request the way the router hands it over. Path
// parameters are not parsed, tests set them with SetUserValue.
func setupTestContext(method, uri string, body []byte) *xhttp.RequestCtx {
	ctx := &xhttp.RequestCtx{}
	ctx.Request.Header.SetMethod(method)
	ctx.Request.SetRequestURI(uri)
	if body != nil {
		ctx.Request.Header.SetContentType("application/json")
		ctx.Request.SetBody(body)
	}
	return ctx
}
