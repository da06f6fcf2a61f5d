// Package archive implements the background worker that drains the
// hot tier into PostgreSQL: private streams, group streams, and the
// friendship graph, once per period.
package archive

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/infodancer/chatd/internal/chat"
	"github.com/infodancer/chatd/internal/kv"
	"github.com/infodancer/chatd/internal/metrics"
)

// Hot-stream bounds applied after a committed archive pass.
const (
	privateTrim = 100
	groupTrim   = 200
)

// Database is the cold-store surface the worker needs. Implemented by
// pgstore.Store.
type Database interface {
	InsertPrivateMessages(ctx context.Context, msgs []chat.Message) error
	InsertGroupMessages(ctx context.Context, groupID int64, msgs []chat.Message) error
	GroupExists(ctx context.Context, groupID int64) (bool, error)
	EnsureFriendship(ctx context.Context, a, b int64) error
}

// Worker periodically drains hot streams into the database.
type Worker struct {
	store    kv.Store
	db       Database
	interval time.Duration
	metrics  metrics.Collector
	logger   *slog.Logger

	// now is the clock; replaced in tests to pin high-water marks.
	now func() time.Time
}

// NewWorker creates an archive worker with the given period.
func NewWorker(store kv.Store, db Database, interval time.Duration, collector metrics.Collector, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	if collector == nil {
		collector = &metrics.NoopCollector{}
	}
	return &Worker{
		store:    store,
		db:       db,
		interval: interval,
		metrics:  collector,
		logger:   logger,
		now:      time.Now,
	}
}

// Run ticks until the context is cancelled. Errors are logged and
// retried at the next tick; they never propagate.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("archive worker started", "interval", w.interval.String())

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("archive worker stopped")
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce runs the three archive passes. The passes are independent;
// one failing does not cancel the others. The tick counts as a success
// if any pass succeeded.
func (w *Worker) RunOnce(ctx context.Context) {
	start := w.now()
	ok := 0

	if err := w.archivePrivate(ctx); err != nil {
		w.logger.Error("private archive pass failed", "error", err.Error())
	} else {
		ok++
	}
	if err := w.archiveGroups(ctx); err != nil {
		w.logger.Error("group archive pass failed", "error", err.Error())
	} else {
		ok++
	}
	if err := w.archiveFriendships(ctx); err != nil {
		w.logger.Error("friendship archive pass failed", "error", err.Error())
	} else {
		ok++
	}

	w.metrics.ArchiveRun(ok > 0)
	w.logger.Info("archive tick complete",
		"passes_ok", ok,
		"elapsed", time.Since(start).String(),
	)
}

// archivePrivate drains every pair stream past its high-water mark.
func (w *Worker) archivePrivate(ctx context.Context) error {
	keys, err := w.store.Keys(ctx, "chat:*:*")
	if err != nil {
		return err
	}

	total := 0
	for _, key := range keys {
		// The glob also matches high-water keys (chat:a:b:last_archive);
		// a pair stream has exactly three segments.
		if strings.Count(key, ":") != 2 {
			continue
		}

		n, err := w.drainStream(ctx, key, func(msgs []chat.Message) error {
			return w.db.InsertPrivateMessages(ctx, msgs)
		}, privateTrim)
		if err != nil {
			return err
		}
		total += n
	}

	if total > 0 {
		w.metrics.MessagesArchived(chat.KindPrivate, total)
	}
	return nil
}

// archiveGroups drains every group stream whose group still exists.
func (w *Worker) archiveGroups(ctx context.Context) error {
	keys, err := w.store.Keys(ctx, "group:*:messages")
	if err != nil {
		return err
	}

	total := 0
	for _, key := range keys {
		groupID, ok := groupIDFromKey(key)
		if !ok {
			w.logger.Warn("skipping malformed group stream key", "key", key)
			continue
		}

		kind, err := w.store.Type(ctx, key)
		if err != nil {
			return err
		}
		if kind != kv.KindList {
			w.logger.Warn("skipping group stream with wrong type", "key", key, "type", kind)
			continue
		}

		exists, err := w.db.GroupExists(ctx, groupID)
		if err != nil {
			return err
		}
		if !exists {
			w.logger.Warn("skipping stream for unknown group", "group_id", groupID)
			continue
		}

		n, err := w.drainStream(ctx, key, func(msgs []chat.Message) error {
			return w.db.InsertGroupMessages(ctx, groupID, msgs)
		}, groupTrim)
		if err != nil {
			return err
		}
		total += n
	}

	if total > 0 {
		w.metrics.MessagesArchived(chat.KindGroup, total)
	}
	return nil
}

// drainStream archives the entries of one hot stream newer than its
// high-water mark, advances the mark, and trims the stream. Returns
// the number of archived messages.
func (w *Worker) drainStream(ctx context.Context, key string, insert func([]chat.Message) error, trim int64) (int, error) {
	highWater, err := w.highWater(ctx, key)
	if err != nil {
		return 0, err
	}

	entries, err := w.store.LRange(ctx, key, 0, -1)
	if err != nil {
		return 0, err
	}

	var msgs []chat.Message
	for _, entry := range entries {
		m, err := chat.DecodeMessage(entry)
		if err != nil {
			w.logger.Warn("skipping malformed stream entry", "key", key, "error", err.Error())
			continue
		}
		if m.Timestamp <= highWater {
			continue
		}
		msgs = append(msgs, m)
	}

	if len(msgs) > 0 {
		if err := insert(msgs); err != nil {
			return 0, err
		}
	}

	// Advance the mark even when nothing was new, then bound the
	// stream. Trimming only happens after a committed insert, so a
	// failed tick never loses entries.
	mark := strconv.FormatInt(w.now().UnixMilli(), 10)
	if err := w.store.Set(ctx, chat.HighWaterKey(key), mark); err != nil {
		return 0, err
	}
	if err := w.store.LTrim(ctx, key, -trim, -1); err != nil {
		return 0, err
	}

	return len(msgs), nil
}

// archiveFriendships mirrors every hot-tier friend edge into the
// relational pair table. The unique pair constraint makes re-archiving
// idempotent.
func (w *Worker) archiveFriendships(ctx context.Context) error {
	keys, err := w.store.Keys(ctx, "user:*:friends")
	if err != nil {
		return err
	}

	for _, key := range keys {
		userID, ok := userIDFromKey(key)
		if !ok {
			w.logger.Warn("skipping malformed friends key", "key", key)
			continue
		}

		friends, err := w.store.SMembers(ctx, key)
		if err != nil {
			return err
		}
		for _, f := range friends {
			friendID, err := strconv.ParseInt(f, 10, 64)
			if err != nil {
				w.logger.Warn("skipping malformed friend id", "key", key, "value", f)
				continue
			}
			// A corrupt hot entry listing a user as their own friend
			// must not fail the pass.
			if friendID == userID {
				w.logger.Warn("skipping self-referential friend edge", "key", key)
				continue
			}
			if err := w.db.EnsureFriendship(ctx, userID, friendID); err != nil {
				return err
			}
		}
	}
	return nil
}

// highWater reads a stream's last-archive mark, defaulting to 0.
func (w *Worker) highWater(ctx context.Context, streamKey string) (int64, error) {
	v, err := w.store.Get(ctx, chat.HighWaterKey(streamKey))
	if errors.Is(err, kv.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	mark, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		w.logger.Warn("resetting malformed high-water mark", "key", streamKey, "value", v)
		return 0, nil
	}
	return mark, nil
}

// groupIDFromKey parses "group:<id>:messages".
func groupIDFromKey(key string) (int64, bool) {
	parts := strings.Split(key, ":")
	if len(parts) != 3 {
		return 0, false
	}
	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// userIDFromKey parses "user:<id>:friends".
func userIDFromKey(key string) (int64, bool) {
	parts := strings.Split(key, ":")
	if len(parts) != 3 {
		return 0, false
	}
	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
