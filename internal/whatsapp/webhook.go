// Package whatsapp talks to the WhatsApp Cloud API: it parses inbound webhooks
// and sends text replies.
package whatsapp

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

var ErrInvalidPayload = errors.New("whatsapp: invalid webhook payload")

// InboundMessage is one text message from a webhook delivery.
type InboundMessage struct {
	ID        string
	From      string
	Text      string
	Timestamp int64
	// Payload re-wraps the single message in the webhook envelope, so it keeps
	// the entry[0].changes[0].value.messages[0] shape.
	Payload json.RawMessage
}

type envelope struct {
	Object string          `json:"object,omitempty"`
	Entry  []envelopeEntry `json:"entry"`
}

type envelopeEntry struct {
	ID      string           `json:"id,omitempty"`
	Changes []envelopeChange `json:"changes"`
}

type envelopeChange struct {
	Field string        `json:"field,omitempty"`
	Value envelopeValue `json:"value"`
}

type envelopeValue struct {
	MessagingProduct string            `json:"messaging_product,omitempty"`
	Metadata         json.RawMessage   `json:"metadata,omitempty"`
	Messages         []json.RawMessage `json:"messages"`
}

// ParseWebhook extracts the text messages of a webhook body. Status updates and
// non-text messages are skipped.
func ParseWebhook(body []byte) ([]InboundMessage, error) {
	if !gjson.ValidBytes(body) {
		return nil, ErrInvalidPayload
	}
	root := gjson.ParseBytes(body)
	if !root.Get("entry").IsArray() {
		return nil, fmt.Errorf("%w: missing entry array", ErrInvalidPayload)
	}

	var out []InboundMessage
	var buildErr error
	root.Get("entry").ForEach(func(_, entry gjson.Result) bool {
		entry.Get("changes").ForEach(func(_, change gjson.Result) bool {
			value := change.Get("value")
			value.Get("messages").ForEach(func(_, msg gjson.Result) bool {
				if msg.Get("type").String() != "text" {
					return true
				}
				text := msg.Get("text.body").String()
				if text == "" {
					return true
				}

				payload, err := json.Marshal(envelope{
					Object: root.Get("object").String(),
					Entry: []envelopeEntry{{
						ID: entry.Get("id").String(),
						Changes: []envelopeChange{{
							Field: change.Get("field").String(),
							Value: envelopeValue{
								MessagingProduct: value.Get("messaging_product").String(),
								Metadata:         rawOrNil(value.Get("metadata")),
								Messages:         []json.RawMessage{json.RawMessage(msg.Raw)},
							},
						}},
					}},
				})
				if err != nil {
					buildErr = err
					return false
				}

				out = append(out, InboundMessage{
					ID:        msg.Get("id").String(),
					From:      msg.Get("from").String(),
					Text:      text,
					Timestamp: msg.Get("timestamp").Int(),
					Payload:   payload,
				})
				return true
			})
			return buildErr == nil
		})
		return buildErr == nil
	})
	if buildErr != nil {
		return nil, fmt.Errorf("rebuild message payload: %w", buildErr)
	}

	return out, nil
}

func rawOrNil(r gjson.Result) json.RawMessage {
	if !r.Exists() {
		return nil
	}
	return json.RawMessage(r.Raw)
}
