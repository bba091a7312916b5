package bot

import (
	"strings"

	"github.com/Laisky/errors/v2"
	tb "gopkg.in/telebot.v3"

	"github.com/Laisky/telefiles/internal/registry"
)

// CallbackEvent is one inbound button press.
type CallbackEvent struct {
	ID        string
	Data      string
	MessageID int
}

// Event is the neutral inbound event the dispatcher routes: either a
// message (Text and/or Attachment set) or a button press (Callback set).
type Event struct {
	UserID    int64
	Username  string
	ChatID    int64
	MessageID int

	Text string
	// Attachment carried by the message itself.
	Attachment *registry.Attachment
	// ReplyAttachment is the attachment of the replied-to message, for
	// the "/save as a reply" flow.
	ReplyAttachment *registry.Attachment

	Callback *CallbackEvent
}

// eventFromUpdate maps a raw platform update to an Event. Updates with
// the expected fields missing are malformed inbound events.
func eventFromUpdate(upd tb.Update) (*Event, error) {
	if upd.Callback != nil {
		c := upd.Callback
		if c.Sender == nil || c.Message == nil || c.Message.Chat == nil {
			return nil, errors.New("callback without sender or message")
		}

		return &Event{
			UserID:    c.Sender.ID,
			Username:  c.Sender.Username,
			ChatID:    c.Message.Chat.ID,
			MessageID: c.Message.ID,
			Callback: &CallbackEvent{
				ID: c.ID,
				// telebot prefixes data of \f-tagged buttons; accept both.
				Data:      strings.TrimPrefix(c.Data, "\f"),
				MessageID: c.Message.ID,
			},
		}, nil
	}

	if upd.Message != nil {
		m := upd.Message
		if m.Sender == nil || m.Chat == nil {
			return nil, errors.New("message without sender or chat")
		}

		ev := &Event{
			UserID:     m.Sender.ID,
			Username:   m.Sender.Username,
			ChatID:     m.Chat.ID,
			MessageID:  m.ID,
			Text:       m.Text,
			Attachment: extractAttachment(m),
		}
		if m.ReplyTo != nil {
			ev.ReplyAttachment = extractAttachment(m.ReplyTo)
		}
		if ev.Text == "" && m.Caption != "" && ev.Attachment == nil {
			ev.Text = m.Caption
		}

		return ev, nil
	}

	return nil, errors.New("update carries neither message nor callback")
}
