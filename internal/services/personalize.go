package services

import (
	"html"

	"github.com/beaconblast/campaign-delivery/internal/model"
	"github.com/beaconblast/campaign-delivery/pkg/logger"
	"github.com/osteele/liquid"
)

// Personalizer renders merge tags such as {{ first_name }}.
type Personalizer struct {
	engine *liquid.Engine
}

func NewPersonalizer() *Personalizer {
	return &Personalizer{engine: liquid.NewEngine()}
}

// Content is the subject and bodies of one message.
type Content struct {
	Subject string
	HTML    string
	Text    string
}

// Prepared holds parsed templates for one campaign. A part that does not
// parse is sent as written.
type Prepared struct {
	campaignID int64
	raw        Content
	subject    *liquid.Template
	html       *liquid.Template
	text       *liquid.Template
}

func (p *Personalizer) Prepare(campaignID int64, content Content) *Prepared {
	return &Prepared{
		campaignID: campaignID,
		raw:        content,
		subject:    p.parse(campaignID, "subject", content.Subject),
		html:       p.parse(campaignID, "html", content.HTML),
		text:       p.parse(campaignID, "text", content.Text),
	}
}

func (p *Personalizer) parse(campaignID int64, part, src string) *liquid.Template {
	if src == "" {
		return nil
	}
	tpl, err := p.engine.ParseString(src)
	if err != nil {
		logger.Warn("Template does not parse, sending unrendered", "campaign_id", campaignID, "part", part, "error", err)
		return nil
	}
	return tpl
}

func (pr *Prepared) Render(r model.Recipient) Content {
	b := Bindings(r)
	return Content{
		Subject: pr.render("subject", pr.subject, pr.raw.Subject, b),
		HTML:    pr.render("html", pr.html, pr.raw.HTML, htmlBindings(b)),
		Text:    pr.render("text", pr.text, pr.raw.Text, b),
	}
}

func (pr *Prepared) render(part string, tpl *liquid.Template, raw string, b liquid.Bindings) string {
	if tpl == nil {
		return raw
	}
	out, err := tpl.RenderString(b)
	if err != nil {
		logger.Warn("Template render failed, sending unrendered", "campaign_id", pr.campaignID, "part", part, "error", err)
		return raw
	}
	return out
}

func Bindings(r model.Recipient) liquid.Bindings {
	return liquid.Bindings{
		"email":      r.Email,
		"first_name": r.FirstName,
		"last_name":  r.LastName,
		"name":       r.Name,
		"contact_id": r.ContactID,
	}
}

// htmlBindings escapes contact fields for the HTML part. Contacts are
// imported data and may hold markup.
func htmlBindings(b liquid.Bindings) liquid.Bindings {
	out := make(liquid.Bindings, len(b))
	for k, v := range b {
		if str, ok := v.(string); ok {
			v = html.EscapeString(str)
		}
		out[k] = v
	}
	return out
}
