package bot

import (
	"context"
	"strings"

	"github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"
	tb "gopkg.in/telebot.v3"

	"github.com/Laisky/telefiles/internal/registry"
	"github.com/Laisky/telefiles/internal/session"
	"github.com/Laisky/telefiles/internal/stats"
	"github.com/Laisky/telefiles/library/config"
	"github.com/Laisky/telefiles/library/log"
)

// Command is one recognized command word.
type Command string

const (
	CmdStart  Command = "start"
	CmdHelp   Command = "help"
	CmdSave   Command = "save"
	CmdFiles  Command = "files"
	CmdDelete Command = "delete"
	CmdStats  Command = "stats"
	CmdCancel Command = "cancel"
)

// Commands enumerates every recognized command; the dispatch table is
// checked for completeness against it at construction time.
var Commands = []Command{
	CmdStart, CmdHelp, CmdSave, CmdFiles, CmdDelete, CmdStats, CmdCancel,
}

// Action is the leading token of a callback payload `action:p1:p2:...`.
type Action string

const (
	ActionFile     Action = "file"
	ActionPage     Action = "page"
	ActionCategory Action = "category"
	ActionDelete   Action = "delete"
	ActionConfirm  Action = "confirm"
)

// Actions enumerates every recognized callback action.
var Actions = []Action{
	ActionFile, ActionPage, ActionCategory, ActionDelete, ActionConfirm,
}

const (
	msgApology         = "something went wrong, please try again"
	msgUnauthorized    = "you are not authorized to do that"
	msgNotFound        = "this file does not exist or no longer exists"
	msgNotRecognized   = "command not recognized, see /help"
	msgNothingToCancel = "nothing to cancel"
	msgCancelled       = "cancelled"
)

type commandHandler func(ctx context.Context, ev *Event, args string) error

// callbackHandler handles one button press and returns the
// acknowledgment text; the dispatcher answers the callback exactly once
// regardless of the handler outcome.
type callbackHandler func(ctx context.Context, ev *Event, params []string) (ack string, err error)

type flowHandler func(ctx context.Context, ev *Event, sess *session.Session) error

// Dispatcher routes inbound events through the per-user session state
// machine to the file registry. Each inbound event is handled by one
// stateless invocation; all durable state lives in the key-value store.
type Dispatcher struct {
	cfg      *config.Config
	files    *registry.Registry
	sessions *session.Store
	usage    *stats.Recorder
	msgr     Messenger

	commands  map[Command]commandHandler
	callbacks map[Action]callbackHandler
	flows     map[session.State]flowHandler
}

// New builds a Dispatcher and verifies every enumerated command,
// callback action and session state has a handler, so adding a new one
// cannot silently fall through a default branch.
func New(
	cfg *config.Config,
	files *registry.Registry,
	sessions *session.Store,
	usage *stats.Recorder,
	msgr Messenger,
) (*Dispatcher, error) {
	d := &Dispatcher{
		cfg:      cfg,
		files:    files,
		sessions: sessions,
		usage:    usage,
		msgr:     msgr,
	}

	d.commands = map[Command]commandHandler{
		CmdStart:  d.cmdStart,
		CmdHelp:   d.cmdHelp,
		CmdSave:   d.cmdSave,
		CmdFiles:  d.cmdFiles,
		CmdDelete: d.cmdDelete,
		CmdStats:  d.cmdStats,
		CmdCancel: d.cmdCancel,
	}
	d.callbacks = map[Action]callbackHandler{
		ActionFile:     d.cbFile,
		ActionPage:     d.cbPage,
		ActionCategory: d.cbCategory,
		ActionDelete:   d.cbDelete,
		ActionConfirm:  d.cbConfirm,
	}
	d.flows = map[session.State]flowHandler{
		session.StateAwaitingFileCategory:  d.flowAwaitCategory,
		session.StateAwaitingDeleteConfirm: d.flowAwaitDeleteConfirm,
	}

	for _, cmd := range Commands {
		if d.commands[cmd] == nil {
			return nil, errors.Errorf("command %q has no handler", cmd)
		}
	}
	for _, action := range Actions {
		if d.callbacks[action] == nil {
			return nil, errors.Errorf("callback action %q has no handler", action)
		}
	}
	for _, state := range session.States {
		if d.flows[state] == nil {
			return nil, errors.Errorf("session state %q has no flow handler", state)
		}
	}

	return d, nil
}

// HandleUpdate is the webhook entry point. It never returns an error:
// every internal failure ends in a logged error and, when the chat is
// known, a generic apology reply.
func (d *Dispatcher) HandleUpdate(ctx context.Context, upd tb.Update) {
	ev, err := eventFromUpdate(upd)
	if err != nil {
		log.Logger.Warn("malformed inbound event", zap.Error(err), zap.Int("update_id", upd.ID))
		return
	}

	if err := d.handleEvent(ctx, ev); err != nil {
		log.Logger.Error("handle event",
			zap.Error(err),
			zap.Int64("uid", ev.UserID),
			zap.String("username", ev.Username))
		if sendErr := d.msgr.SendMessage(ctx, ev.ChatID, msgApology, nil); sendErr != nil {
			log.Logger.Error("send apology", zap.Error(sendErr))
		}
	}
}

func (d *Dispatcher) handleEvent(ctx context.Context, ev *Event) error {
	if ev.Callback != nil {
		d.handleCallback(ctx, ev)
		return nil
	}

	return d.handleMessage(ctx, ev)
}

func (d *Dispatcher) handleMessage(ctx context.Context, ev *Event) error {
	sess, err := d.sessions.GetOrCreate(ctx, ev.UserID)
	if err != nil {
		return errors.Wrap(err, "load session")
	}

	cmd, args, isCmd := parseCommand(ev.Text, d.cfg.BotName)

	// mid-flow input continues the flow; /cancel always breaks out
	if sess.State != session.StateIdle {
		if isCmd && cmd == CmdCancel {
			return d.resetToIdle(ctx, ev, msgCancelled)
		}

		flow, ok := d.flows[sess.State]
		if !ok {
			// state written by a newer or broken build; recover to idle
			log.Logger.Warn("session in unknown state",
				zap.Int64("uid", ev.UserID), zap.String("state", string(sess.State)))
			return d.resetToIdle(ctx, ev, msgApology)
		}

		return flow(ctx, ev, sess)
	}

	if isCmd {
		handler, ok := d.commands[cmd]
		if !ok {
			return errors.WithStack(d.msgr.SendMessage(ctx, ev.ChatID, msgNotRecognized, nil))
		}

		d.recordUsage(ctx, ev.UserID, "cmd:"+string(cmd))
		return handler(ctx, ev, args)
	}

	// a bare admin upload starts the save flow without any command
	if ev.Attachment != nil && d.cfg.IsAdmin(ev.UserID) {
		d.recordUsage(ctx, ev.UserID, "save")
		return d.beginSaveFlow(ctx, ev, ev.Attachment)
	}

	return d.freeTextFallback(ctx, ev)
}

func (d *Dispatcher) handleCallback(ctx context.Context, ev *Event) {
	parts := strings.Split(ev.Callback.Data, ":")
	action := Action(parts[0])
	params := parts[1:]

	var ack string
	handler, ok := d.callbacks[action]
	if !ok {
		ack = "unknown action"
	} else {
		d.recordUsage(ctx, ev.UserID, "callback:"+string(action))

		var err error
		if ack, err = handler(ctx, ev, params); err != nil {
			log.Logger.Error("handle callback",
				zap.Error(err),
				zap.Int64("uid", ev.UserID),
				zap.String("data", ev.Callback.Data))
			if ack == "" {
				ack = msgApology
			}
		}
	}

	// exactly one acknowledgment per callback, success or failure
	if err := d.msgr.AnswerCallback(ctx, ev.Callback.ID, ack); err != nil {
		log.Logger.Error("answer callback", zap.Error(err), zap.String("id", ev.Callback.ID))
	}
}

// parseCommand recognizes `/word[@botname] [args...]`, case-insensitive.
func parseCommand(text, botName string) (cmd Command, args string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}

	word := text[1:]
	if i := strings.IndexAny(word, " \t\n"); i >= 0 {
		args = strings.TrimSpace(word[i+1:])
		word = word[:i]
	}

	word = strings.ToLower(word)
	if i := strings.IndexByte(word, '@'); i >= 0 {
		if !strings.EqualFold(word[i+1:], botName) {
			return "", "", false
		}
		word = word[:i]
	}
	if word == "" {
		return "", "", false
	}

	return Command(word), args, true
}

// freeTextFallback is a soft keyword heuristic; first match wins.
func (d *Dispatcher) freeTextFallback(ctx context.Context, ev *Event) error {
	lower := strings.ToLower(ev.Text)
	switch {
	case strings.Contains(lower, "hello"):
		return errors.WithStack(d.msgr.SendMessage(ctx, ev.ChatID,
			"hello! see /help for what I can do", nil))
	case strings.Contains(lower, "files"), strings.Contains(lower, "my files"):
		return d.cmdFiles(ctx, ev, "")
	case strings.Contains(lower, "stats"):
		return d.cmdStats(ctx, ev, "")
	case strings.Contains(lower, "help"):
		return d.cmdHelp(ctx, ev, "")
	}

	return errors.WithStack(d.msgr.SendMessage(ctx, ev.ChatID,
		"I didn't get that, see /help", nil))
}

// resetToIdle forces the session back to idle, dropping any pending data.
func (d *Dispatcher) resetToIdle(ctx context.Context, ev *Event, reply string) error {
	if _, err := d.sessions.Transition(ctx, ev.UserID, session.StateIdle, session.Data{}); err != nil {
		return errors.Wrap(err, "reset session")
	}

	return errors.WithStack(d.msgr.SendMessage(ctx, ev.ChatID, reply, nil))
}

// recordUsage is observational; failures are logged, never propagated.
func (d *Dispatcher) recordUsage(ctx context.Context, uid int64, action string) {
	if err := d.usage.Record(ctx, uid, action); err != nil {
		log.Logger.Warn("record usage", zap.Error(err), zap.String("action", action))
	}
}
