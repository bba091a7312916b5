package bot

import (
	"context"

	"github.com/Laisky/errors/v2"
	tb "gopkg.in/telebot.v3"

	"github.com/Laisky/telefiles/internal/registry"
)

// extractAttachment classifies the single attachment of a message into
// the tagged variant, or nil when the message carries none. This is the
// one place that knows the per-kind platform fields; every kind in
// registry.Kinds must be handled here.
func extractAttachment(m *tb.Message) *registry.Attachment {
	switch {
	case m.Document != nil:
		return &registry.Attachment{
			Kind:       registry.KindDocument,
			FileHandle: m.Document.FileID,
			Caption:    m.Caption,
			FileName:   m.Document.FileName,
			MIME:       m.Document.MIME,
		}
	case m.Photo != nil:
		return &registry.Attachment{
			Kind:       registry.KindPhoto,
			FileHandle: m.Photo.FileID,
			Caption:    m.Caption,
			Width:      m.Photo.Width,
			Height:     m.Photo.Height,
		}
	case m.Video != nil:
		return &registry.Attachment{
			Kind:       registry.KindVideo,
			FileHandle: m.Video.FileID,
			Caption:    m.Caption,
			Width:      m.Video.Width,
			Height:     m.Video.Height,
			Duration:   m.Video.Duration,
			FileName:   m.Video.FileName,
			MIME:       m.Video.MIME,
		}
	case m.Audio != nil:
		return &registry.Attachment{
			Kind:       registry.KindAudio,
			FileHandle: m.Audio.FileID,
			Caption:    m.Caption,
			Duration:   m.Audio.Duration,
			Title:      m.Audio.Title,
			MIME:       m.Audio.MIME,
		}
	case m.Voice != nil:
		return &registry.Attachment{
			Kind:       registry.KindVoice,
			FileHandle: m.Voice.FileID,
			Caption:    m.Caption,
			Duration:   m.Voice.Duration,
			MIME:       m.Voice.MIME,
		}
	case m.Animation != nil:
		return &registry.Attachment{
			Kind:       registry.KindAnimation,
			FileHandle: m.Animation.FileID,
			Caption:    m.Caption,
			Width:      m.Animation.Width,
			Height:     m.Animation.Height,
			Duration:   m.Animation.Duration,
			FileName:   m.Animation.FileName,
		}
	}

	return nil
}

// deliverRecord replays a stored file back to chatID through the send
// operation matching its kind. An unknown stored kind is a
// data-integrity error, not a crash.
func deliverRecord(ctx context.Context, msgr Messenger, chatID int64, record *registry.FileRecord) error {
	switch record.Kind {
	case registry.KindDocument:
		return msgr.SendDocument(ctx, chatID, record.FileHandle, record.Caption)
	case registry.KindPhoto:
		return msgr.SendPhoto(ctx, chatID, record.FileHandle, record.Caption)
	case registry.KindVideo:
		return msgr.SendVideo(ctx, chatID, record.FileHandle, record.Caption)
	case registry.KindAudio:
		return msgr.SendAudio(ctx, chatID, record.FileHandle, record.Caption)
	case registry.KindVoice:
		return msgr.SendVoice(ctx, chatID, record.FileHandle, record.Caption)
	case registry.KindAnimation:
		return msgr.SendAnimation(ctx, chatID, record.FileHandle, record.Caption)
	default:
		return errors.Errorf("record %q has unknown attachment kind %q", record.ID, record.Kind)
	}
}
