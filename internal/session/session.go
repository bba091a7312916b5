// Package session keeps the per-user dispatch state machine data.
package session

import (
	"context"
	"strconv"

	"github.com/Laisky/errors/v2"
	gutils "github.com/Laisky/go-utils/v6"

	"github.com/Laisky/telefiles/internal/registry"
	"github.com/Laisky/telefiles/library/db/kv"
)

const keySessionPrefix = "session:"

// State names the position of a user inside a multi-step flow.
type State string

const (
	// StateIdle is the initial and terminal-reentrant state.
	StateIdle State = "idle"
	// StateAwaitingFileCategory waits for a category after an admin upload.
	StateAwaitingFileCategory State = "awaiting_file_category"
	// StateAwaitingDeleteConfirm waits for a delete confirmation.
	StateAwaitingDeleteConfirm State = "awaiting_delete_confirm"
)

// States enumerates every non-idle state; the dispatcher checks its flow
// table against this list.
var States = []State{
	StateAwaitingFileCategory,
	StateAwaitingDeleteConfirm,
}

// Data is the payload a continuation handler expects for the current
// state. Transitions replace it wholesale, never merge.
type Data struct {
	// PendingFile is the stashed attachment while awaiting a category.
	PendingFile *registry.Attachment `bson:"pending_file,omitempty" json:"pending_file,omitempty"`
	// PendingDeleteID is the file id while awaiting a delete confirmation.
	PendingDeleteID string `bson:"pending_delete_id,omitempty" json:"pending_delete_id,omitempty"`
}

// Session is the single per-user state document.
type Session struct {
	UserID       int64 `bson:"user_id" json:"user_id"`
	State        State `bson:"state" json:"state"`
	Data         Data  `bson:"data" json:"data"`
	CreatedAt    int64 `bson:"created_at" json:"created_at"`
	LastActiveAt int64 `bson:"last_active_at" json:"last_active_at"`
}

// Store persists sessions in the key-value store, one document per user.
// A transition that is decided but not yet persisted leaves the prior
// state intact; concurrent events from the same user are last-writer-wins.
type Store struct {
	store kv.Store
}

// NewStore creates a session store over store.
func NewStore(store kv.Store) *Store {
	return &Store{store: store}
}

func sessionKey(uid int64) string {
	return keySessionPrefix + strconv.FormatInt(uid, 10)
}

// GetOrCreate loads the user's session, lazily creating an idle one.
func (s *Store) GetOrCreate(ctx context.Context, uid int64) (*Session, error) {
	sess := new(Session)
	ok, err := s.store.Get(ctx, sessionKey(uid), sess)
	if err != nil {
		return nil, errors.Wrapf(err, "get session of %d", uid)
	}
	if ok {
		return sess, nil
	}

	now := gutils.Clock.GetUTCNow().UnixMilli()
	sess = &Session{
		UserID:       uid,
		State:        StateIdle,
		CreatedAt:    now,
		LastActiveAt: now,
	}
	if err := s.store.Put(ctx, sessionKey(uid), sess); err != nil {
		return nil, errors.Wrapf(err, "create session of %d", uid)
	}

	return sess, nil
}

// Transition replaces the session's state and data, bumps LastActiveAt,
// persists and returns the updated session.
func (s *Store) Transition(ctx context.Context, uid int64, state State, data Data) (*Session, error) {
	sess, err := s.GetOrCreate(ctx, uid)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	sess.State = state
	sess.Data = data
	sess.LastActiveAt = gutils.Clock.GetUTCNow().UnixMilli()
	if err := s.store.Put(ctx, sessionKey(uid), sess); err != nil {
		return nil, errors.Wrapf(err, "persist session of %d", uid)
	}

	return sess, nil
}
