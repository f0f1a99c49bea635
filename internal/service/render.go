// internal/service/render.go
package service

import (
	"regexp"

	"github.com/unclebandit/outreach-engine/internal/model"
)

var placeholderPattern = regexp.MustCompile(`\{([a-zA-Z0-9_]+)\}`)

// RenderTemplate substitutes {name} placeholders with values from data.
// Placeholders with no value render as an empty string.
func RenderTemplate(template string, data map[string]string) string {
	return placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		key := match[1 : len(match)-1]
		return data[key]
	})
}

// recipientVars exposes a recipient's fields as template variables.
func recipientVars(rec *model.Recipient) map[string]string {
	vars := map[string]string{
		"name":  rec.Name,
		"email": rec.Email,
		"phone": rec.Phone,
	}
	for channel, id := range rec.ChannelIDs {
		vars[channel+"_id"] = id
	}
	return vars
}

// RenderForRecipient renders a channel template against one recipient.
// Recipient-specific values win over the template's defaults; variables
// with neither render empty.
func RenderForRecipient(t *model.MessageTemplate, rec *model.Recipient) (subject, body string) {
	merged := map[string]string{}
	for k, v := range t.TemplateVariables {
		merged[k] = v
	}
	for k, v := range recipientVars(rec) {
		if v != "" {
			merged[k] = v
		}
	}

	return RenderTemplate(t.Subject, merged), RenderTemplate(t.BodyTemplate, merged)
}
