// Package lark talks to the Lark/Feishu open platform: interactive message
// cards, custom bot webhooks and card callbacks over the long connection.
package lark

import (
	"coffee-booking-backend/internal/model"
	"coffee-booking-backend/internal/notification"
)

type text struct {
	Tag     string `json:"tag"`
	Content string `json:"content"`
}

type cardConfig struct {
	WideScreenMode bool `json:"wide_screen_mode"`
}

type cardHeader struct {
	Template string `json:"template,omitempty"`
	Title    text   `json:"title"`
}

type divElement struct {
	Tag  string `json:"tag"`
	Text text   `json:"text"`
}

type button struct {
	Tag   string            `json:"tag"`
	Text  text              `json:"text"`
	Type  string            `json:"type"`
	Value map[string]string `json:"value"`
}

type actionElement struct {
	Tag     string   `json:"tag"`
	Actions []button `json:"actions"`
}

// Card is an interactive message card.
type Card struct {
	Config   cardConfig `json:"config"`
	Header   cardHeader `json:"header"`
	Elements []any      `json:"elements"`
}

// TemplateCard references a card built in the card builder.
type TemplateCard struct {
	Type string       `json:"type"`
	Data templateData `json:"data"`
}

type templateData struct {
	TemplateID       string            `json:"template_id"`
	TemplateVariable map[string]string `json:"template_variable"`
}

// Card button values.
const (
	valueActionType   = "action_type"
	valueInvitationID = "invitation_id"
)

func markdown(content string) divElement {
	return divElement{Tag: "div", Text: text{Tag: "lark_md", Content: content}}
}

// EventCard renders a notification event as a single markdown card.
func EventCard(ev notification.Event) Card {
	color := ev.Color
	if color == "" {
		color = "blue"
	}
	return Card{
		Config:   cardConfig{WideScreenMode: true},
		Header:   cardHeader{Template: color, Title: text{Tag: "plain_text", Content: ev.Title}},
		Elements: []any{markdown(ev.Body)},
	}
}

// InvitationCard builds the card sent to the invitee. With a template id
// the card is rendered from the template; otherwise an inline card with
// accept and reject buttons is used. Both carry the invitation id back in
// the callback.
func InvitationCard(inv model.Invitation, templateID string) any {
	if templateID != "" {
		return TemplateCard{
			Type: "template",
			Data: templateData{
				TemplateID: templateID,
				TemplateVariable: map[string]string{
					"open_id":       inv.RecipientID,
					"sender_id":     inv.SenderID,
					"invitation_id": inv.ID,
					"message":       inv.Message,
				},
			},
		}
	}

	body := `<at id="` + inv.SenderID + `"></at> 邀请你一起喝杯咖啡 ☕`
	if inv.Message != "" {
		body += "\n" + inv.Message
	}
	buttonFor := func(label, kind, action string) button {
		return button{
			Tag:  "button",
			Text: text{Tag: "plain_text", Content: label},
			Type: kind,
			Value: map[string]string{
				valueActionType:   action,
				valueInvitationID: inv.ID,
			},
		}
	}
	return Card{
		Config: cardConfig{WideScreenMode: true},
		Header: cardHeader{Template: "orange", Title: text{Tag: "plain_text", Content: "☕ 咖啡邀请"}},
		Elements: []any{
			markdown(body),
			actionElement{
				Tag: "action",
				Actions: []button{
					buttonFor("接受", "primary", "accept"),
					buttonFor("婉拒", "default", "reject"),
				},
			},
		},
	}
}
