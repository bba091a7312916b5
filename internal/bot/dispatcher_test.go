package bot

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	tb "gopkg.in/telebot.v3"

	"github.com/Laisky/telefiles/internal/registry"
	"github.com/Laisky/telefiles/internal/session"
	"github.com/Laisky/telefiles/internal/stats"
	"github.com/Laisky/telefiles/library/config"
	"github.com/Laisky/telefiles/library/db/kv"
)

const adminUID int64 = 1

type sentMessage struct {
	ChatID int64
	Text   string
	Opts   *SendOptions
}

type delivery struct {
	Kind       registry.Kind
	ChatID     int64
	FileHandle string
	Caption    string
}

// fakeMessenger records every outbound call for assertions.
type fakeMessenger struct {
	Messages   []sentMessage
	Edits      []sentMessage
	Deliveries []delivery
	Acks       []string
	Deleted    []int
}

func (m *fakeMessenger) SendMessage(ctx context.Context, chatID int64, text string, opts *SendOptions) error {
	m.Messages = append(m.Messages, sentMessage{ChatID: chatID, Text: text, Opts: opts})
	return nil
}

func (m *fakeMessenger) record(kind registry.Kind, chatID int64, fileHandle, caption string) error {
	m.Deliveries = append(m.Deliveries, delivery{Kind: kind, ChatID: chatID, FileHandle: fileHandle, Caption: caption})
	return nil
}

func (m *fakeMessenger) SendDocument(ctx context.Context, chatID int64, fh, cap string) error {
	return m.record(registry.KindDocument, chatID, fh, cap)
}
func (m *fakeMessenger) SendPhoto(ctx context.Context, chatID int64, fh, cap string) error {
	return m.record(registry.KindPhoto, chatID, fh, cap)
}
func (m *fakeMessenger) SendVideo(ctx context.Context, chatID int64, fh, cap string) error {
	return m.record(registry.KindVideo, chatID, fh, cap)
}
func (m *fakeMessenger) SendAudio(ctx context.Context, chatID int64, fh, cap string) error {
	return m.record(registry.KindAudio, chatID, fh, cap)
}
func (m *fakeMessenger) SendVoice(ctx context.Context, chatID int64, fh, cap string) error {
	return m.record(registry.KindVoice, chatID, fh, cap)
}
func (m *fakeMessenger) SendAnimation(ctx context.Context, chatID int64, fh, cap string) error {
	return m.record(registry.KindAnimation, chatID, fh, cap)
}

func (m *fakeMessenger) EditMessageText(ctx context.Context, chatID int64, messageID int, text string, opts *SendOptions) error {
	m.Edits = append(m.Edits, sentMessage{ChatID: chatID, Text: text, Opts: opts})
	return nil
}

func (m *fakeMessenger) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	m.Deleted = append(m.Deleted, messageID)
	return nil
}

func (m *fakeMessenger) AnswerCallback(ctx context.Context, callbackID, text string) error {
	m.Acks = append(m.Acks, text)
	return nil
}

func (m *fakeMessenger) lastMessage(t *testing.T) sentMessage {
	t.Helper()
	require.NotEmpty(t, m.Messages)
	return m.Messages[len(m.Messages)-1]
}

func (m *fakeMessenger) lastEdit(t *testing.T) sentMessage {
	t.Helper()
	require.NotEmpty(t, m.Edits)
	return m.Edits[len(m.Edits)-1]
}

type testEnv struct {
	dispatcher *Dispatcher
	msgr       *fakeMessenger
	files      *registry.Registry
	sessions   *session.Store
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := &config.Config{
		Token:      "test-token",
		BotName:    "stashbot",
		AdminUIDs:  []int64{adminUID},
		PageSize:   5,
		Categories: []string{"documents", "media"},
	}
	store := kv.NewMemStore()
	files := registry.New(store, cfg.IsAdmin)
	sessions := session.NewStore(store)
	msgr := new(fakeMessenger)

	dispatcher, err := New(cfg, files, sessions, stats.NewRecorder(store), msgr)
	require.NoError(t, err)

	return &testEnv{
		dispatcher: dispatcher,
		msgr:       msgr,
		files:      files,
		sessions:   sessions,
	}
}

func textUpdate(uid int64, text string) tb.Update {
	return tb.Update{Message: &tb.Message{
		ID:     100,
		Sender: &tb.User{ID: uid, Username: fmt.Sprintf("user%d", uid)},
		Chat:   &tb.Chat{ID: uid},
		Text:   text,
	}}
}

func documentUpdate(uid int64, fileHandle string) tb.Update {
	return tb.Update{Message: &tb.Message{
		ID:       101,
		Sender:   &tb.User{ID: uid},
		Chat:     &tb.Chat{ID: uid},
		Document: &tb.Document{File: tb.File{FileID: fileHandle}, FileName: "report.pdf"},
	}}
}

func callbackUpdate(uid int64, data string) tb.Update {
	return tb.Update{Callback: &tb.Callback{
		ID:     "cb-1",
		Sender: &tb.User{ID: uid},
		Message: &tb.Message{
			ID:   200,
			Chat: &tb.Chat{ID: uid},
		},
		Data: data,
	}}
}

var shareLinkRe = regexp.MustCompile(`https://t\.me/stashbot\?start=post=([0-9a-f]+)`)

func extractFileID(t *testing.T, text string) string {
	t.Helper()
	m := shareLinkRe.FindStringSubmatch(text)
	require.NotNil(t, m, "no share link in %q", text)
	return m[1]
}

func TestSaveFlowEndToEnd(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	// admin sends a document, gets the category prompt
	env.dispatcher.HandleUpdate(ctx, documentUpdate(adminUID, "fh-doc-1"))
	prompt := env.msgr.lastMessage(t)
	require.Contains(t, prompt.Text, "category")
	require.NotNil(t, prompt.Opts)
	require.NotEmpty(t, prompt.Opts.Buttons)

	sess, err := env.sessions.GetOrCreate(ctx, adminUID)
	require.NoError(t, err)
	require.Equal(t, session.StateAwaitingFileCategory, sess.State)

	// category as free text finishes the save
	env.dispatcher.HandleUpdate(ctx, textUpdate(adminUID, "documents"))
	saved := env.msgr.lastMessage(t)
	require.Contains(t, saved.Text, "?start=post=")
	id := extractFileID(t, saved.Text)

	sess, err = env.sessions.GetOrCreate(ctx, adminUID)
	require.NoError(t, err)
	require.Equal(t, session.StateIdle, sess.State)

	record, err := env.files.Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, record)
	require.Equal(t, "documents", record.Category)
	require.EqualValues(t, 0, record.AccessCount)

	// another user retrieves it through the share link
	env.dispatcher.HandleUpdate(ctx, textUpdate(2, "/start post="+id))
	require.Len(t, env.msgr.Deliveries, 1)
	require.Equal(t, registry.KindDocument, env.msgr.Deliveries[0].Kind)
	require.Equal(t, "fh-doc-1", env.msgr.Deliveries[0].FileHandle)

	record, err = env.files.Get(ctx, id)
	require.NoError(t, err)
	require.EqualValues(t, 1, record.AccessCount)
}

func TestSaveFlowCategoryButton(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	env.dispatcher.HandleUpdate(ctx, documentUpdate(adminUID, "fh-doc-2"))
	env.dispatcher.HandleUpdate(ctx, callbackUpdate(adminUID, "category:media"))

	require.Len(t, env.msgr.Acks, 1)
	require.Equal(t, "saved", env.msgr.Acks[0])

	records, err := env.files.ListByCategory(ctx, "media")
	require.NoError(t, err)
	require.Len(t, records, 1)
}

func TestSaveFlowCancelButton(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	env.dispatcher.HandleUpdate(ctx, documentUpdate(adminUID, "fh-doc-3"))
	env.dispatcher.HandleUpdate(ctx, callbackUpdate(adminUID, "category:cancel"))

	require.Equal(t, []string{msgCancelled}, env.msgr.Acks)
	require.Contains(t, env.msgr.lastEdit(t).Text, "cancelled")

	sess, err := env.sessions.GetOrCreate(ctx, adminUID)
	require.NoError(t, err)
	require.Equal(t, session.StateIdle, sess.State)

	total, err := env.files.CountAll(ctx)
	require.NoError(t, err)
	require.Zero(t, total)
}

func TestSaveViaReplyCommand(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	upd := textUpdate(adminUID, "/save")
	upd.Message.ReplyTo = &tb.Message{
		ID:       99,
		Document: &tb.Document{File: tb.File{FileID: "fh-replied"}, FileName: "a.pdf"},
	}
	env.dispatcher.HandleUpdate(ctx, upd)

	sess, err := env.sessions.GetOrCreate(ctx, adminUID)
	require.NoError(t, err)
	require.Equal(t, session.StateAwaitingFileCategory, sess.State)
	require.NotNil(t, sess.Data.PendingFile)
	require.Equal(t, "fh-replied", sess.Data.PendingFile.FileHandle)
}

func TestSaveDeniedForNonAdmin(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	upd := textUpdate(2, "/save")
	upd.Message.ReplyTo = &tb.Message{
		ID:       99,
		Document: &tb.Document{File: tb.File{FileID: "fh-denied"}},
	}
	env.dispatcher.HandleUpdate(ctx, upd)

	require.Equal(t, msgUnauthorized, env.msgr.lastMessage(t).Text)

	total, err := env.files.CountAll(ctx)
	require.NoError(t, err)
	require.Zero(t, total)
}

func TestAttachmentFromNonAdminIgnored(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	env.dispatcher.HandleUpdate(ctx, documentUpdate(2, "fh-doc-4"))

	sess, err := env.sessions.GetOrCreate(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, session.StateIdle, sess.State)

	total, err := env.files.CountAll(ctx)
	require.NoError(t, err)
	require.Zero(t, total)
}

func TestStartWithUnknownToken(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	env.dispatcher.HandleUpdate(ctx, textUpdate(2, "/start post=doesnotexist"))
	require.Equal(t, msgNotFound, env.msgr.lastMessage(t).Text)
	require.Empty(t, env.msgr.Deliveries)
}

func TestStartWithoutTokenShowsWelcome(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	env.dispatcher.HandleUpdate(ctx, textUpdate(2, "/start"))
	require.Contains(t, env.msgr.lastMessage(t).Text, "welcome")
}

func saveFiles(t *testing.T, env *testEnv, uid int64, n int) []string {
	t.Helper()
	ctx := context.Background()

	var ids []string
	for i := range n {
		record, err := env.files.Save(ctx, &registry.Attachment{
			Kind:       registry.KindDocument,
			FileHandle: fmt.Sprintf("fh-%d", i),
			Caption:    fmt.Sprintf("file %d", i),
		}, uid, "docs")
		require.NoError(t, err)
		ids = append(ids, record.ID)
	}

	return ids
}

func navButtons(t *testing.T, msg sentMessage) []Button {
	t.Helper()
	require.NotNil(t, msg.Opts)
	require.NotEmpty(t, msg.Opts.Buttons)
	return msg.Opts.Buttons[len(msg.Opts.Buttons)-1]
}

func TestFilesPagination(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	saveFiles(t, env, 3, 7)

	env.dispatcher.HandleUpdate(ctx, textUpdate(3, "/files"))
	page1 := env.msgr.lastMessage(t)
	require.Contains(t, page1.Text, "page 1/2")
	require.Equal(t, strings.Count(page1.Text, "\n"), 6) // header + 5 items

	nav := navButtons(t, page1)
	require.Len(t, nav, 1)
	require.Equal(t, "page:files:2", nav[0].Data)

	// pagination callback re-renders in place
	env.dispatcher.HandleUpdate(ctx, callbackUpdate(3, "page:files:2"))
	require.Len(t, env.msgr.Acks, 1)

	page2 := env.msgr.lastEdit(t)
	require.Contains(t, page2.Text, "page 2/2")
	require.Equal(t, strings.Count(page2.Text, "\n"), 3) // header + 2 items

	nav = navButtons(t, page2)
	require.Len(t, nav, 1)
	require.Equal(t, "page:files:1", nav[0].Data)
}

func TestFilesEmpty(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	env.dispatcher.HandleUpdate(ctx, textUpdate(3, "/files"))
	msg := env.msgr.lastMessage(t)
	require.Contains(t, msg.Text, "no saved files")
	require.Empty(t, msg.Opts.Buttons)
}

func TestDeleteFlowCancelled(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	ids := saveFiles(t, env, 3, 1)

	env.dispatcher.HandleUpdate(ctx, textUpdate(3, "/delete "+ids[0]))
	sess, err := env.sessions.GetOrCreate(ctx, 3)
	require.NoError(t, err)
	require.Equal(t, session.StateAwaitingDeleteConfirm, sess.State)
	require.Equal(t, ids[0], sess.Data.PendingDeleteID)

	// anything but confirm cancels
	env.dispatcher.HandleUpdate(ctx, textUpdate(3, "nope"))
	require.Contains(t, env.msgr.lastMessage(t).Text, "cancelled")

	sess, err = env.sessions.GetOrCreate(ctx, 3)
	require.NoError(t, err)
	require.Equal(t, session.StateIdle, sess.State)

	record, err := env.files.Get(ctx, ids[0])
	require.NoError(t, err)
	require.NotNil(t, record)
}

func TestDeleteFlowConfirmedByText(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	ids := saveFiles(t, env, 3, 1)

	env.dispatcher.HandleUpdate(ctx, textUpdate(3, "/delete "+ids[0]))
	env.dispatcher.HandleUpdate(ctx, textUpdate(3, "confirm"))
	require.Equal(t, "deleted", env.msgr.lastMessage(t).Text)

	record, err := env.files.Get(ctx, ids[0])
	require.NoError(t, err)
	require.Nil(t, record)
}

func TestDeleteFlowConfirmedByButton(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	ids := saveFiles(t, env, 3, 1)

	env.dispatcher.HandleUpdate(ctx, callbackUpdate(3, "file:delete:"+ids[0]))
	env.dispatcher.HandleUpdate(ctx, callbackUpdate(3, "confirm:delete:"+ids[0]))
	require.Len(t, env.msgr.Acks, 2)
	require.Equal(t, "deleted", env.msgr.Acks[1])

	record, err := env.files.Get(ctx, ids[0])
	require.NoError(t, err)
	require.Nil(t, record)
}

func TestDeleteDeniedForOtherUser(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	ids := saveFiles(t, env, 3, 1)

	env.dispatcher.HandleUpdate(ctx, textUpdate(4, "/delete "+ids[0]))
	require.Equal(t, msgUnauthorized, env.msgr.lastMessage(t).Text)

	// permission failure must not enter the confirm flow
	sess, err := env.sessions.GetOrCreate(ctx, 4)
	require.NoError(t, err)
	require.Equal(t, session.StateIdle, sess.State)
}

func TestCancelWhenIdle(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	env.dispatcher.HandleUpdate(ctx, textUpdate(3, "/cancel"))
	require.Equal(t, msgNothingToCancel, env.msgr.lastMessage(t).Text)
}

func TestCancelBreaksOutOfFlow(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	env.dispatcher.HandleUpdate(ctx, documentUpdate(adminUID, "fh-doc-5"))
	env.dispatcher.HandleUpdate(ctx, textUpdate(adminUID, "/cancel"))
	require.Equal(t, msgCancelled, env.msgr.lastMessage(t).Text)

	sess, err := env.sessions.GetOrCreate(ctx, adminUID)
	require.NoError(t, err)
	require.Equal(t, session.StateIdle, sess.State)
}

func TestUnrecognizedCommand(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	env.dispatcher.HandleUpdate(ctx, textUpdate(3, "/frobnicate"))
	require.Equal(t, msgNotRecognized, env.msgr.lastMessage(t).Text)
}

func TestStatsForAdmin(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	ids := saveFiles(t, env, 3, 2)
	require.NoError(t, env.files.RecordAccess(ctx, ids[1]))

	env.dispatcher.HandleUpdate(ctx, textUpdate(adminUID, "/stats"))
	msg := env.msgr.lastMessage(t)
	require.Contains(t, msg.Text, "stored files: 2")
	require.Contains(t, msg.Text, "most accessed:")
	require.Contains(t, msg.Text, ids[1])
}

func TestStatsForRegularUser(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	saveFiles(t, env, 3, 2)

	env.dispatcher.HandleUpdate(ctx, textUpdate(3, "/stats"))
	msg := env.msgr.lastMessage(t)
	require.Contains(t, msg.Text, "2 saved files")
	require.NotContains(t, msg.Text, "distinct users")
}

func TestShareButtonSendsLink(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	ids := saveFiles(t, env, 3, 1)

	env.dispatcher.HandleUpdate(ctx, callbackUpdate(3, "file:share:"+ids[0]))
	require.Equal(t, []string{"link sent"}, env.msgr.Acks)
	require.Equal(t, shareLink("stashbot", ids[0]), env.msgr.lastMessage(t).Text)
}

func TestCallbackAlwaysAcknowledgedOnce(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	for _, data := range []string{
		"file:share:doesnotexist",
		"page:files:2",
		"category:media",
		"confirm:cancel",
		"bogus:action",
		"file:list:notanumber",
	} {
		env.dispatcher.HandleUpdate(ctx, callbackUpdate(3, data))
	}

	require.Len(t, env.msgr.Acks, 6)
}

func TestMalformedUpdateIsDropped(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	env.dispatcher.HandleUpdate(ctx, tb.Update{})
	env.dispatcher.HandleUpdate(ctx, tb.Update{Message: &tb.Message{Text: "no sender"}})
	require.Empty(t, env.msgr.Messages)
	require.Empty(t, env.msgr.Acks)
}

func TestFreeTextFallback(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	env.dispatcher.HandleUpdate(ctx, textUpdate(3, "hello there"))
	require.Contains(t, env.msgr.lastMessage(t).Text, "hello")

	env.dispatcher.HandleUpdate(ctx, textUpdate(3, "show my files please"))
	require.Contains(t, env.msgr.lastMessage(t).Text, "no saved files")
}
