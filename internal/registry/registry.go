package registry

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sort"
	"strconv"

	"github.com/Laisky/errors/v2"
	gutils "github.com/Laisky/go-utils/v6"
	"github.com/Laisky/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Laisky/telefiles/library/db/kv"
	"github.com/Laisky/telefiles/library/log"
)

const (
	keyFilePrefix     = "file:"
	keyOwnerIdxPrefix = "fileidx:owner:"
	keyCatIdxPrefix   = "fileidx:category:"

	// DefaultCategory is used when the saver supplies no category.
	DefaultCategory = "general"

	// resolveConcurrency bounds concurrent record fetches during listing.
	resolveConcurrency = 8
)

// IsAdminFunc reports whether a user id belongs to an administrator.
type IsAdminFunc func(uid int64) bool

// Registry stores file records with owner and category indexes on top of
// a transactionless key-value store. Record and index writes are separate
// operations; readers tolerate dangling index entries.
type Registry struct {
	store   kv.Store
	isAdmin IsAdminFunc
}

// New creates a Registry over store. isAdmin gates delete and other
// mutating actions besides the owner.
func New(store kv.Store, isAdmin IsAdminFunc) *Registry {
	return &Registry{store: store, isAdmin: isAdmin}
}

// newFileID returns a 128-bit random hex token. Random rather than
// time-based so concurrent saves cannot collide.
func newFileID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.Wrap(err, "read random bytes")
	}

	return hex.EncodeToString(buf), nil
}

func fileKey(id string) string { return keyFilePrefix + id }

func ownerIdxKey(uid int64) string { return keyOwnerIdxPrefix + strconv.FormatInt(uid, 10) }

func categoryIdxKey(cat string) string { return keyCatIdxPrefix + cat }

// Save writes a fresh record built from att and appends its id to the
// owner and category indexes. Returns the stored record.
func (r *Registry) Save(ctx context.Context, att *Attachment, ownerID int64, category string) (*FileRecord, error) {
	if att == nil {
		return nil, errors.New("nil attachment")
	}
	if !att.Kind.Valid() {
		return nil, errors.Errorf("unsupported attachment kind %q", att.Kind)
	}
	if category == "" {
		category = DefaultCategory
	}

	id, err := newFileID()
	if err != nil {
		return nil, errors.Wrap(err, "generate file id")
	}

	record := &FileRecord{
		ID:          id,
		FileHandle:  att.FileHandle,
		Kind:        att.Kind,
		Caption:     att.Caption,
		OwnerID:     ownerID,
		Category:    category,
		CreatedAt:   gutils.Clock.GetUTCNow().UnixMilli(),
		AccessCount: 0,
	}

	if err := r.store.Put(ctx, fileKey(id), record); err != nil {
		return nil, errors.Wrap(err, "put file record")
	}
	if err := r.appendIndex(ctx, ownerIdxKey(ownerID), id); err != nil {
		return nil, errors.Wrap(err, "append owner index")
	}
	if err := r.appendIndex(ctx, categoryIdxKey(category), id); err != nil {
		return nil, errors.Wrap(err, "append category index")
	}

	return record, nil
}

// Get loads one record, returning nil when the id does not resolve.
func (r *Registry) Get(ctx context.Context, id string) (*FileRecord, error) {
	record := new(FileRecord)
	ok, err := r.store.Get(ctx, fileKey(id), record)
	if err != nil {
		return nil, errors.Wrapf(err, "get file %q", id)
	}
	if !ok {
		return nil, nil
	}

	return record, nil
}

// RecordAccess bumps the access counter and the last-access timestamp.
// A missing record is a no-op, not an error.
func (r *Registry) RecordAccess(ctx context.Context, id string) error {
	record, err := r.Get(ctx, id)
	if err != nil {
		return errors.WithStack(err)
	}
	if record == nil {
		return nil
	}

	now := gutils.Clock.GetUTCNow().UnixMilli()
	record.AccessCount++
	record.LastAccessedAt = &now
	if err := r.store.Put(ctx, fileKey(id), record); err != nil {
		return errors.Wrapf(err, "update access of %q", id)
	}

	return nil
}

// Delete removes the record and both index entries when requesterID is
// the owner or an administrator. Returns false without mutation otherwise,
// and false when the id does not resolve.
func (r *Registry) Delete(ctx context.Context, id string, requesterID int64) (bool, error) {
	record, err := r.Get(ctx, id)
	if err != nil {
		return false, errors.WithStack(err)
	}
	if record == nil {
		return false, nil
	}
	if record.OwnerID != requesterID && !r.isAdmin(requesterID) {
		return false, nil
	}

	if err := r.store.Delete(ctx, fileKey(id)); err != nil {
		return false, errors.Wrapf(err, "delete file %q", id)
	}
	if err := r.removeIndex(ctx, ownerIdxKey(record.OwnerID), id); err != nil {
		return false, errors.Wrap(err, "remove owner index entry")
	}
	if err := r.removeIndex(ctx, categoryIdxKey(record.Category), id); err != nil {
		return false, errors.Wrap(err, "remove category index entry")
	}

	return true, nil
}

// ListByOwner resolves the owner index to records, preserving index
// order and silently dropping ids whose records are already gone.
func (r *Registry) ListByOwner(ctx context.Context, ownerID int64) ([]*FileRecord, error) {
	return r.resolveIndex(ctx, ownerIdxKey(ownerID))
}

// ListByCategory resolves the category index with the same tolerance.
func (r *Registry) ListByCategory(ctx context.Context, category string) ([]*FileRecord, error) {
	return r.resolveIndex(ctx, categoryIdxKey(category))
}

// MostAccessed returns up to n records ordered by access count
// descending, ties broken by id ascending.
func (r *Registry) MostAccessed(ctx context.Context, n int) ([]*FileRecord, error) {
	keys, err := r.store.ListKeysByPrefix(ctx, keyFilePrefix)
	if err != nil {
		return nil, errors.Wrap(err, "list file keys")
	}

	records, err := r.fetchRecords(ctx, keys)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	sort.Slice(records, func(i, j int) bool {
		if records[i].AccessCount != records[j].AccessCount {
			return records[i].AccessCount > records[j].AccessCount
		}

		return records[i].ID < records[j].ID
	})
	if len(records) > n {
		records = records[:n]
	}

	return records, nil
}

// CountAll returns the total number of stored records.
func (r *Registry) CountAll(ctx context.Context) (int, error) {
	keys, err := r.store.ListKeysByPrefix(ctx, keyFilePrefix)
	if err != nil {
		return 0, errors.Wrap(err, "list file keys")
	}

	return len(keys), nil
}

func (r *Registry) resolveIndex(ctx context.Context, idxKey string) ([]*FileRecord, error) {
	var ids []string
	if _, err := r.store.Get(ctx, idxKey, &ids); err != nil {
		return nil, errors.Wrapf(err, "get index %q", idxKey)
	}

	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, fileKey(id))
	}

	return r.fetchRecords(ctx, keys)
}

// fetchRecords loads records for keys concurrently, keeping key order and
// dropping keys that no longer resolve.
func (r *Registry) fetchRecords(ctx context.Context, keys []string) ([]*FileRecord, error) {
	found := make([]*FileRecord, len(keys))

	var pool errgroup.Group
	pool.SetLimit(resolveConcurrency)
	for i, key := range keys {
		pool.Go(func() error {
			record := new(FileRecord)
			ok, err := r.store.Get(ctx, key, record)
			if err != nil {
				return errors.Wrapf(err, "get %q", key)
			}
			if !ok {
				// stale index entry, already gone
				log.Logger.Debug("drop dangling index entry", zap.String("key", key))
				return nil
			}

			found[i] = record
			return nil
		})
	}
	if err := pool.Wait(); err != nil {
		return nil, errors.Wrap(err, "resolve records")
	}

	records := make([]*FileRecord, 0, len(found))
	for _, record := range found {
		if record != nil {
			records = append(records, record)
		}
	}

	return records, nil
}

func (r *Registry) appendIndex(ctx context.Context, idxKey, id string) error {
	var ids []string
	if _, err := r.store.Get(ctx, idxKey, &ids); err != nil {
		return errors.Wrapf(err, "get index %q", idxKey)
	}

	ids = append(ids, id)
	return errors.Wrapf(r.store.Put(ctx, idxKey, ids), "put index %q", idxKey)
}

func (r *Registry) removeIndex(ctx context.Context, idxKey, id string) error {
	var ids []string
	if _, err := r.store.Get(ctx, idxKey, &ids); err != nil {
		return errors.Wrapf(err, "get index %q", idxKey)
	}

	kept := ids[:0]
	for _, got := range ids {
		if got != id {
			kept = append(kept, got)
		}
	}

	if len(kept) == 0 {
		return errors.Wrapf(r.store.Delete(ctx, idxKey), "delete index %q", idxKey)
	}

	return errors.Wrapf(r.store.Put(ctx, idxKey, kept), "put index %q", idxKey)
}
