package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Laisky/errors/v2"
	gutils "github.com/Laisky/go-utils/v6"

	"github.com/Laisky/telefiles/internal/registry"
	"github.com/Laisky/telefiles/internal/session"
)

const retrievalTokenPrefix = "post="

var helpText = gutils.Dedent(`
	I keep files and hand out share links.

	/start - welcome, or retrieve a file via a share link
	/help - this text
	/save - (admin) reply to a file message to store it
	/files - list your saved files
	/delete <id> - delete one of your files
	/stats - usage statistics
	/cancel - abort the current operation

	Admins can also just send me a file to store it.
	`)

func (d *Dispatcher) cmdStart(ctx context.Context, ev *Event, args string) error {
	for _, field := range strings.Fields(args) {
		if strings.HasPrefix(field, retrievalTokenPrefix) {
			if id := field[len(retrievalTokenPrefix):]; id != "" {
				return d.deliverFile(ctx, ev, id)
			}
		}
	}

	welcome := fmt.Sprintf("welcome to @%s!\n\n%s", d.cfg.BotName, helpText)
	return errors.WithStack(d.msgr.SendMessage(ctx, ev.ChatID, welcome, nil))
}

// deliverFile resolves a retrieval token and replays the stored file.
func (d *Dispatcher) deliverFile(ctx context.Context, ev *Event, id string) error {
	record, err := d.files.Get(ctx, id)
	if err != nil {
		return errors.Wrap(err, "get file")
	}
	if record == nil {
		return errors.WithStack(d.msgr.SendMessage(ctx, ev.ChatID, msgNotFound, nil))
	}

	if !record.Kind.Valid() {
		// corrupted record; report, do not crash
		if err := d.msgr.SendMessage(ctx, ev.ChatID,
			"this file record is corrupted and cannot be delivered", nil); err != nil {
			return errors.WithStack(err)
		}

		return errors.Errorf("record %q has unknown attachment kind %q", record.ID, record.Kind)
	}

	if err := d.files.RecordAccess(ctx, id); err != nil {
		return errors.Wrap(err, "record access")
	}
	d.recordUsage(ctx, ev.UserID, "retrieve")

	return errors.Wrap(deliverRecord(ctx, d.msgr, ev.ChatID, record), "deliver file")
}

func (d *Dispatcher) cmdHelp(ctx context.Context, ev *Event, args string) error {
	return errors.WithStack(d.msgr.SendMessage(ctx, ev.ChatID, helpText, nil))
}

func (d *Dispatcher) cmdSave(ctx context.Context, ev *Event, args string) error {
	if !d.cfg.IsAdmin(ev.UserID) {
		return errors.WithStack(d.msgr.SendMessage(ctx, ev.ChatID, msgUnauthorized, nil))
	}

	att := ev.ReplyAttachment
	if att == nil {
		return errors.WithStack(d.msgr.SendMessage(ctx, ev.ChatID,
			"reply /save to the message carrying the file you want to store", nil))
	}

	return d.beginSaveFlow(ctx, ev, att)
}

// beginSaveFlow stashes the attachment in the session and asks for a
// category.
func (d *Dispatcher) beginSaveFlow(ctx context.Context, ev *Event, att *registry.Attachment) error {
	if !att.Kind.Valid() {
		return errors.WithStack(d.msgr.SendMessage(ctx, ev.ChatID,
			"this attachment kind is not supported", nil))
	}

	if _, err := d.sessions.Transition(ctx, ev.UserID,
		session.StateAwaitingFileCategory,
		session.Data{PendingFile: att},
	); err != nil {
		return errors.Wrap(err, "enter save flow")
	}

	return errors.WithStack(d.msgr.SendMessage(ctx, ev.ChatID,
		"pick a category for this file, or send one as text (/cancel to abort)",
		&SendOptions{Buttons: d.categoryButtons()}))
}

func (d *Dispatcher) categoryButtons() [][]Button {
	categories := d.cfg.Categories
	if len(categories) == 0 {
		categories = []string{registry.DefaultCategory}
	}

	var rows [][]Button
	var row []Button
	for _, cat := range categories {
		row = append(row, Button{Text: cat, Data: "category:" + cat})
		if len(row) == 3 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}

	return append(rows, []Button{{Text: "cancel", Data: "category:cancel"}})
}

func (d *Dispatcher) cmdFiles(ctx context.Context, ev *Event, args string) error {
	return d.sendFilesPage(ctx, ev, 1, false)
}

// sendFilesPage renders one page of the caller's files, either as a new
// message or by editing the message the pagination button lives on.
func (d *Dispatcher) sendFilesPage(ctx context.Context, ev *Event, page int, edit bool) error {
	records, err := d.files.ListByOwner(ctx, ev.UserID)
	if err != nil {
		return errors.Wrap(err, "list files")
	}

	text, buttons := renderFilesPage(records, page, d.cfg.PageSize)
	opts := &SendOptions{Buttons: buttons}
	if edit {
		return errors.Wrap(
			d.msgr.EditMessageText(ctx, ev.ChatID, ev.MessageID, text, opts),
			"edit files page")
	}

	return errors.Wrap(d.msgr.SendMessage(ctx, ev.ChatID, text, opts), "send files page")
}

func (d *Dispatcher) cmdDelete(ctx context.Context, ev *Event, args string) error {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return errors.WithStack(d.msgr.SendMessage(ctx, ev.ChatID, "usage: /delete <id>", nil))
	}

	reply, buttons, err := d.startDeleteConfirm(ctx, ev, fields[0])
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(d.msgr.SendMessage(ctx, ev.ChatID, reply, &SendOptions{Buttons: buttons}))
}

// startDeleteConfirm checks the id and permissions; only when both pass
// does the session enter the delete-confirm state.
func (d *Dispatcher) startDeleteConfirm(ctx context.Context, ev *Event, id string) (reply string, buttons [][]Button, err error) {
	record, err := d.files.Get(ctx, id)
	if err != nil {
		return "", nil, errors.Wrap(err, "get file")
	}
	if record == nil {
		return msgNotFound, nil, nil
	}
	if record.OwnerID != ev.UserID && !d.cfg.IsAdmin(ev.UserID) {
		return msgUnauthorized, nil, nil
	}

	if _, err := d.sessions.Transition(ctx, ev.UserID,
		session.StateAwaitingDeleteConfirm,
		session.Data{PendingDeleteID: id},
	); err != nil {
		return "", nil, errors.Wrap(err, "enter delete flow")
	}

	reply = fmt.Sprintf("delete %s %q? reply `confirm` to delete, anything else cancels",
		record.Kind, recordLabel(record))
	buttons = [][]Button{{
		{Text: "confirm", Data: "confirm:delete:" + id},
		{Text: "cancel", Data: "confirm:cancel"},
	}}
	return reply, buttons, nil
}

func (d *Dispatcher) cmdStats(ctx context.Context, ev *Event, args string) error {
	if d.cfg.IsAdmin(ev.UserID) {
		return d.sendAdminStats(ctx, ev)
	}

	records, err := d.files.ListByOwner(ctx, ev.UserID)
	if err != nil {
		return errors.Wrap(err, "list files")
	}
	sess, err := d.sessions.GetOrCreate(ctx, ev.UserID)
	if err != nil {
		return errors.Wrap(err, "load session")
	}

	text := fmt.Sprintf("you have %d saved files\nfirst seen: %s\nlast active: %s",
		len(records),
		time.UnixMilli(sess.CreatedAt).UTC().Format(time.RFC3339),
		time.UnixMilli(sess.LastActiveAt).UTC().Format(time.RFC3339))
	return errors.WithStack(d.msgr.SendMessage(ctx, ev.ChatID, text, nil))
}

func (d *Dispatcher) sendAdminStats(ctx context.Context, ev *Event) error {
	snap, err := d.usage.Snapshot(ctx)
	if err != nil {
		return errors.Wrap(err, "usage snapshot")
	}
	top, err := d.files.MostAccessed(ctx, 5)
	if err != nil {
		return errors.Wrap(err, "most accessed files")
	}
	total, err := d.files.CountAll(ctx)
	if err != nil {
		return errors.Wrap(err, "count files")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "distinct users: %d\ntotal actions: %d\nstored files: %d\n",
		snap.DistinctUsers, snap.TotalActions, total)
	if len(top) > 0 {
		b.WriteString("\nmost accessed:\n")
		for i, record := range top {
			fmt.Fprintf(&b, "%d. %s (%s) - %d hits\n",
				i+1, recordLabel(record), record.ID, record.AccessCount)
		}
	}

	return errors.WithStack(d.msgr.SendMessage(ctx, ev.ChatID, b.String(), nil))
}

func (d *Dispatcher) cmdCancel(ctx context.Context, ev *Event, args string) error {
	// mid-flow /cancel is intercepted by the dispatcher before the
	// command table; reaching here means the session is already idle
	return d.resetToIdle(ctx, ev, msgNothingToCancel)
}
