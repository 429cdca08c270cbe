// Package tracking builds the open, click and unsubscribe URLs embedded in
// outgoing mail and rewrites campaign HTML to use them.
package tracking

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

const (
	OpenPath        = "/track/open"
	ClickPath       = "/track/click"
	UnsubscribePath = "/track/unsubscribe"

	// any URL containing this is already a tracking URL
	trackingMarker = "/track/"
)

// A double-quoted value may hold an apostrophe and a single-quoted one a
// double quote, so each quote style gets its own alternative.
var hrefPattern = regexp.MustCompile(`href="([^"]*)"|href='([^']*)'`)

// Rewriter injects tracking into HTML bodies. It is safe for concurrent use.
type Rewriter struct {
	baseURL string
}

func NewRewriter(baseURL string) *Rewriter {
	return &Rewriter{baseURL: strings.TrimRight(baseURL, "/")}
}

// Rewrite wraps every trackable href in a click URL and adds the open pixel.
// Running it again on its own output changes nothing.
func (r *Rewriter) Rewrite(html string, logID int64, trackingID string) string {
	html = r.RewriteLinks(html, logID, trackingID)
	return r.AddPixel(html, logID, trackingID)
}

// RewriteLinks replaces href values with click URLs, leaving mailto links
// and tracking URLs untouched.
func (r *Rewriter) RewriteLinks(html string, logID int64, trackingID string) string {
	matches := hrefPattern.FindAllStringSubmatchIndex(html, -1)
	if len(matches) == 0 {
		return html
	}

	var b strings.Builder
	b.Grow(len(html))
	last := 0
	for _, m := range matches {
		// m[2:4] is the double-quoted value, m[4:6] the single-quoted one
		start, end := m[2], m[3]
		if start < 0 {
			start, end = m[4], m[5]
		}
		target := html[start:end]
		if !trackable(target) {
			continue
		}
		b.WriteString(html[last:m[0]])
		b.WriteString(`href="`)
		b.WriteString(r.ClickURL(logID, trackingID, target))
		b.WriteString(`"`)
		last = m[1]
	}
	b.WriteString(html[last:])
	return b.String()
}

func trackable(target string) bool {
	if strings.TrimSpace(target) == "" {
		return false
	}
	if strings.HasPrefix(strings.ToLower(target), "mailto:") {
		return false
	}
	return !strings.Contains(target, trackingMarker)
}

// AddPixel inserts the open pixel before the last closing body tag, or
// appends it when there is none.
func (r *Rewriter) AddPixel(html string, logID int64, trackingID string) string {
	src := r.OpenURL(logID, trackingID)
	if strings.Contains(html, src) {
		return html
	}
	pixel := `<img src="` + src + `" width="1" height="1" style="display:none;" alt="" />`

	if i := strings.LastIndex(strings.ToLower(html), "</body>"); i >= 0 {
		return html[:i] + pixel + html[i:]
	}
	return html + pixel
}

func (r *Rewriter) OpenURL(logID int64, trackingID string) string {
	return r.build(OpenPath, refValues(logID, trackingID))
}

func (r *Rewriter) ClickURL(logID int64, trackingID, destination string) string {
	v := refValues(logID, trackingID)
	v.Set("url", destination)
	return r.build(ClickPath, v)
}

func (r *Rewriter) UnsubscribeURL(logID int64, trackingID, email string) string {
	v := refValues(logID, trackingID)
	if email != "" {
		v.Set("email", email)
	}
	return r.build(UnsubscribePath, v)
}

func (r *Rewriter) build(path string, v url.Values) string {
	return r.baseURL + path + "?" + v.Encode()
}

func refValues(logID int64, trackingID string) url.Values {
	v := url.Values{}
	v.Set("log_id", strconv.FormatInt(logID, 10))
	v.Set("tracking_id", trackingID)
	return v
}
