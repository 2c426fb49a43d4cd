package service

import (
	"strings"

	"donationdesk/internal/model"
)

// Template is a canned donor message. Placeholders use {{name}}.
type Template struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Trigger string `json:"trigger"`
	Channel string `json:"channel"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

var templates = []Template{
	{
		ID:      "appeal-approved",
		Name:    "Appeal approved",
		Trigger: model.TriggerApproval,
		Channel: model.ChannelEmail,
		Subject: "Good news: {{appeal_title}} has been approved",
		Body: "Dear donor,\n\nThe appeal \"{{appeal_title}}\" that you supported has been approved " +
			"with a budget of {{approved_amount}}. Work on it starts now and we will keep you posted.\n\n" +
			"Thank you for your generosity.",
	},
	{
		ID:      "appeal-rejected",
		Name:    "Appeal not approved",
		Trigger: model.TriggerRejection,
		Channel: model.ChannelEmail,
		Subject: "Update on {{appeal_title}}",
		Body: "Dear donor,\n\nThe appeal \"{{appeal_title}}\" was not approved.\n\nReason: {{reason}}\n\n" +
			"Our team will contact you about how your contribution will be used.",
	},
	{
		ID:      "appeal-progress",
		Name:    "Progress update",
		Trigger: model.TriggerManual,
		Channel: model.ChannelEmail,
		Subject: "Progress on {{appeal_title}}",
		Body:    "Dear donor,\n\nHere is the latest on \"{{appeal_title}}\":\n\n{{message}}\n\nThank you for your support.",
	},
	{
		ID:      "thank-you-sms",
		Name:    "Thank you (SMS)",
		Trigger: model.TriggerManual,
		Channel: model.ChannelSMS,
		Body:    "Thank you for supporting {{appeal_title}}. {{message}}",
	},
}

// Templates returns a copy of the built-in message templates.
func Templates() []Template {
	out := make([]Template, len(templates))
	copy(out, templates)
	return out
}

func templateByID(id string) (Template, bool) {
	for _, t := range templates {
		if t.ID == id {
			return t, true
		}
	}
	return Template{}, false
}

func templateForTrigger(trigger string) Template {
	for _, t := range templates {
		if t.Trigger == trigger {
			return t
		}
	}
	return templates[len(templates)-1]
}

// render substitutes {{key}} placeholders; unknown placeholders are left as they are.
func render(text string, vars map[string]string) string {
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{{"+k+"}}", v)
	}
	return strings.NewReplacer(pairs...).Replace(text)
}
