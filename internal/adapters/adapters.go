// Package adapters normalizes platform-shaped messages into capture inputs.
// Platform webhooks stay outside this binary; what arrives here is already
// one message with optional routing metadata.
package adapters

import (
	"strings"

	"github.com/oklog/ulid/v2"

	"github.com/kokistudios/hubcap/internal/capture"
)

// RawMessage is the loosest inbound shape: everything optional except the
// content itself.
type RawMessage struct {
	Platform    string               `json:"platform"`
	MessageID   string               `json:"messageId"`
	GroupID     string               `json:"groupId"`
	ReplyTo     string               `json:"replyTo"`
	SenderID    string               `json:"senderId"`
	Timestamp   string               `json:"timestamp"`
	Content     string               `json:"content"`
	Attachments []capture.Attachment `json:"attachments"`
}

// Normalize produces a capture input. Messages without an id get a ULID so
// replay detection still has a stable key once the message is filed.
func Normalize(raw RawMessage) capture.Input {
	messageID := strings.TrimSpace(raw.MessageID)
	if messageID == "" {
		messageID = strings.ToLower(ulid.Make().String())
	}
	platform := strings.TrimSpace(raw.Platform)
	if platform == "" {
		platform = "generic"
	}
	attachments := raw.Attachments
	if attachments == nil {
		attachments = []capture.Attachment{}
	}
	return capture.Input{
		Content:     raw.Content,
		Attachments: attachments,
		Metadata: capture.Metadata{
			Platform:  platform,
			MessageID: messageID,
			GroupID:   strings.TrimSpace(raw.GroupID),
			ReplyTo:   strings.TrimSpace(raw.ReplyTo),
			SenderID:  strings.TrimSpace(raw.SenderID),
			Timestamp: strings.TrimSpace(raw.Timestamp),
		},
	}
}
