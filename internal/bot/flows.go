package bot

import (
	"context"
	"fmt"
	"strings"

	"github.com/Laisky/errors/v2"

	"github.com/Laisky/telefiles/internal/registry"
	"github.com/Laisky/telefiles/internal/session"
)

// flowAwaitCategory consumes the category for a pending save. Buttons go
// through the category callback instead; this path handles free text.
func (d *Dispatcher) flowAwaitCategory(ctx context.Context, ev *Event, sess *session.Session) error {
	category := strings.TrimSpace(ev.Text)
	if category == "" {
		return errors.WithStack(d.msgr.SendMessage(ctx, ev.ChatID,
			"send a category name, pick a button, or /cancel", nil))
	}

	return d.finishSave(ctx, ev, sess.Data.PendingFile, category)
}

// finishSave persists the stashed attachment under category and replies
// with the share link. The session returns to idle either way.
func (d *Dispatcher) finishSave(ctx context.Context, ev *Event, att *registry.Attachment, category string) error {
	if att == nil {
		// pending data lost, e.g. clobbered by a racing event
		return d.resetToIdle(ctx, ev, "this save session expired, please start over")
	}

	record, err := d.files.Save(ctx, att, ev.UserID, category)
	if err != nil {
		return errors.Wrap(err, "save file")
	}

	if _, err := d.sessions.Transition(ctx, ev.UserID, session.StateIdle, session.Data{}); err != nil {
		return errors.Wrap(err, "reset session")
	}

	text := fmt.Sprintf("saved under %q\nid: %s\nshare link: %s",
		record.Category, record.ID, shareLink(d.cfg.BotName, record.ID))
	return errors.WithStack(d.msgr.SendMessage(ctx, ev.ChatID, text, nil))
}

// flowAwaitDeleteConfirm deletes on an explicit confirm; any other input
// cancels.
func (d *Dispatcher) flowAwaitDeleteConfirm(ctx context.Context, ev *Event, sess *session.Session) error {
	input := strings.ToLower(strings.TrimSpace(ev.Text))
	if input != "confirm" && input != "yes" {
		return d.resetToIdle(ctx, ev, "delete cancelled")
	}

	reply, err := d.performDelete(ctx, ev, sess.Data.PendingDeleteID)
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(d.msgr.SendMessage(ctx, ev.ChatID, reply, nil))
}

// performDelete runs the gated delete and returns the user-facing
// outcome. The session always returns to idle.
func (d *Dispatcher) performDelete(ctx context.Context, ev *Event, id string) (string, error) {
	if _, err := d.sessions.Transition(ctx, ev.UserID, session.StateIdle, session.Data{}); err != nil {
		return "", errors.Wrap(err, "reset session")
	}

	if id == "" {
		return msgNotFound, nil
	}

	deleted, err := d.files.Delete(ctx, id, ev.UserID)
	if err != nil {
		return "", errors.Wrap(err, "delete file")
	}
	if !deleted {
		return msgNotFound + ", or you are not allowed to delete it", nil
	}

	return "deleted", nil
}
