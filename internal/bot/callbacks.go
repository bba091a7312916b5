package bot

import (
	"context"
	"strconv"
	"strings"

	"github.com/Laisky/errors/v2"

	"github.com/Laisky/telefiles/internal/session"
)

// cbFile handles `file:share:<id>`, `file:delete:<id>` and
// `file:list:<page>`.
func (d *Dispatcher) cbFile(ctx context.Context, ev *Event, params []string) (string, error) {
	if len(params) < 2 {
		return "malformed action", nil
	}

	switch params[0] {
	case "share":
		record, err := d.files.Get(ctx, params[1])
		if err != nil {
			return "", errors.Wrap(err, "get file")
		}
		if record == nil {
			return msgNotFound, nil
		}

		link := shareLink(d.cfg.BotName, record.ID)
		if err := d.msgr.SendMessage(ctx, ev.ChatID, link, nil); err != nil {
			return "", errors.Wrap(err, "send share link")
		}

		return "link sent", nil

	case "delete":
		reply, buttons, err := d.startDeleteConfirm(ctx, ev, params[1])
		if err != nil {
			return "", errors.WithStack(err)
		}
		if err := d.msgr.SendMessage(ctx, ev.ChatID, reply, &SendOptions{Buttons: buttons}); err != nil {
			return "", errors.Wrap(err, "send delete prompt")
		}

		return "", nil

	case "list":
		page, err := strconv.Atoi(params[1])
		if err != nil {
			return "malformed page number", nil
		}

		return "", errors.WithStack(d.sendFilesPage(ctx, ev, page, true))

	default:
		return "unknown action", nil
	}
}

// cbPage handles `page:<list>:<page>`; "files" is the only named list.
func (d *Dispatcher) cbPage(ctx context.Context, ev *Event, params []string) (string, error) {
	if len(params) < 2 || params[0] != "files" {
		return "unknown list", nil
	}

	page, err := strconv.Atoi(params[1])
	if err != nil {
		return "malformed page number", nil
	}

	return "", errors.WithStack(d.sendFilesPage(ctx, ev, page, true))
}

// cbCategory finishes the save flow with the chosen category; the
// `cancel` pseudo-category aborts it.
func (d *Dispatcher) cbCategory(ctx context.Context, ev *Event, params []string) (string, error) {
	if len(params) == 0 {
		return "malformed action", nil
	}

	sess, err := d.sessions.GetOrCreate(ctx, ev.UserID)
	if err != nil {
		return "", errors.Wrap(err, "load session")
	}
	if sess.State != session.StateAwaitingFileCategory {
		return "no pending save", nil
	}

	// tolerate categories containing the separator
	category := strings.Join(params, ":")
	if category == "cancel" {
		if _, err := d.sessions.Transition(ctx, ev.UserID, session.StateIdle, session.Data{}); err != nil {
			return "", errors.Wrap(err, "reset session")
		}
		if err := d.msgr.EditMessageText(ctx, ev.ChatID, ev.MessageID, "save cancelled", nil); err != nil {
			return "", errors.Wrap(err, "edit prompt")
		}

		return msgCancelled, nil
	}

	if err := d.finishSave(ctx, ev, sess.Data.PendingFile, category); err != nil {
		return "", errors.WithStack(err)
	}

	return "saved", nil
}

// cbDelete handles the bare `delete:<id>` action.
func (d *Dispatcher) cbDelete(ctx context.Context, ev *Event, params []string) (string, error) {
	if len(params) == 0 {
		return "malformed action", nil
	}

	reply, buttons, err := d.startDeleteConfirm(ctx, ev, params[0])
	if err != nil {
		return "", errors.WithStack(err)
	}
	if err := d.msgr.SendMessage(ctx, ev.ChatID, reply, &SendOptions{Buttons: buttons}); err != nil {
		return "", errors.Wrap(err, "send delete prompt")
	}

	return "", nil
}

// cbConfirm handles `confirm:delete:<id>` and `confirm:cancel`.
func (d *Dispatcher) cbConfirm(ctx context.Context, ev *Event, params []string) (string, error) {
	if len(params) == 0 {
		return "malformed action", nil
	}

	switch params[0] {
	case "cancel":
		if _, err := d.sessions.Transition(ctx, ev.UserID, session.StateIdle, session.Data{}); err != nil {
			return "", errors.Wrap(err, "reset session")
		}
		if err := d.msgr.EditMessageText(ctx, ev.ChatID, ev.MessageID, "delete cancelled", nil); err != nil {
			return "", errors.Wrap(err, "edit prompt")
		}

		return msgCancelled, nil

	case "delete":
		if len(params) < 2 {
			return "malformed action", nil
		}

		reply, err := d.performDelete(ctx, ev, params[1])
		if err != nil {
			return "", errors.WithStack(err)
		}
		if err := d.msgr.EditMessageText(ctx, ev.ChatID, ev.MessageID, reply, nil); err != nil {
			return "", errors.Wrap(err, "edit prompt")
		}

		return reply, nil

	default:
		return "unknown action", nil
	}
}
