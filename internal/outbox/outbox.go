// Package outbox keeps confirmed sales the sales service could not record and
// replays them on a schedule. Every request carries its sale reference, so a
// replay of an already recorded sale is harmless.
//
// The backend records a sale under the signed-in user, so an entry is only
// replayed while the cashier who confirmed it is signed in. Entries the
// backend rejects outright (unknown product, no stock, bad payload) are moved
// to a rejected list instead of being retried.
package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"github.com/revelly2/smart-store-front/domain"
	"github.com/revelly2/smart-store-front/internal/client"
	"github.com/revelly2/smart-store-front/internal/storage"
)

const (
	// StorageKey is where pending entries are persisted between runs.
	StorageKey = "outbox"
	// RejectedKey holds entries the backend refused for good.
	RejectedKey = "outbox.rejected"
)

// Recorder is the sales service the queue replays into.
type Recorder interface {
	CreateSale(ctx context.Context, req domain.SaleRequest) (*domain.Sale, error)
}

// IdentitySource yields the user currently signed in.
type IdentitySource interface {
	Identity() (domain.Identity, bool)
}

// Entry is a deferred sale request and the cashier who confirmed it.
type Entry struct {
	domain.SaleRequest
	CashierID int64  `json:"cashier_id"`
	Reason    string `json:"reason,omitempty"`
}

type Queue struct {
	recorder Recorder
	identity IdentitySource
	storage  storage.Storage
	logger   *zap.Logger
	timeout  time.Duration

	mu       sync.Mutex
	pending  []Entry
	rejected []Entry

	flushMu   sync.Mutex
	scheduler *gocron.Scheduler
}

type Option func(*Queue)

// WithStorage persists the pending list so it survives a restart.
func WithStorage(s storage.Storage) Option {
	return func(q *Queue) {
		q.storage = s
	}
}

// WithIdentity limits replay to entries of the user identity reports. Without
// it every entry is replayed.
func WithIdentity(identity IdentitySource) Option {
	return func(q *Queue) {
		q.identity = identity
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(q *Queue) {
		q.logger = logger
	}
}

// WithTimeout bounds each replayed request.
func WithTimeout(d time.Duration) Option {
	return func(q *Queue) {
		q.timeout = d
	}
}

func New(recorder Recorder, opts ...Option) *Queue {
	q := &Queue{
		recorder: recorder,
		logger:   zap.NewNop(),
		timeout:  5 * time.Second,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Load restores entries persisted by an earlier run.
func (q *Queue) Load(ctx context.Context) error {
	if q.storage == nil {
		return nil
	}
	pending, err := q.read(ctx, StorageKey)
	if err != nil {
		return err
	}
	rejected, err := q.read(ctx, RejectedKey)
	if err != nil {
		return err
	}

	q.mu.Lock()
	for _, e := range pending {
		q.appendLocked(e)
	}
	q.rejected = append(q.rejected, rejected...)
	q.mu.Unlock()
	q.logger.Info("outbox restored", zap.Int("pending", len(pending)), zap.Int("rejected", len(rejected)))
	return nil
}

func (q *Queue) read(ctx context.Context, key string) ([]Entry, error) {
	raw, err := q.storage.Get(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", key, err)
	}
	var entries []Entry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		q.logger.Warn("discarding unreadable outbox state", zap.String("key", key), zap.Error(err))
		return nil, q.storage.Delete(ctx, key)
	}
	return entries, nil
}

// Defer queues req, confirmed by cashierID, for a later attempt. A request
// whose reference is already queued is ignored.
func (q *Queue) Defer(cashierID int64, req domain.SaleRequest) {
	entry := Entry{SaleRequest: req, CashierID: cashierID}
	q.mu.Lock()
	added := q.appendLocked(entry)
	pending := snapshot(q.pending)
	q.mu.Unlock()

	if !added {
		return
	}
	q.logger.Info("sale deferred",
		zap.String("reference", req.Reference),
		zap.Int64("cashier_id", cashierID),
		zap.Int("pending", len(pending)))
	q.persist(context.Background(), StorageKey, pending)
}

func (q *Queue) appendLocked(e Entry) bool {
	if e.Reference != "" {
		for _, p := range q.pending {
			if p.Reference == e.Reference {
				return false
			}
		}
	}
	q.pending = append(q.pending, e)
	return true
}

func snapshot(entries []Entry) []Entry {
	out := make([]Entry, len(entries))
	copy(out, entries)
	return out
}

// Pending returns the queued entries, oldest first.
func (q *Queue) Pending() []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	return snapshot(q.pending)
}

// Rejected returns the entries the backend refused, oldest first.
func (q *Queue) Rejected() []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	return snapshot(q.rejected)
}

// Permanent reports whether err is a rejection that a retry cannot fix.
// Transport failures, server errors, expired sessions, timeouts and rate
// limits are worth retrying.
func Permanent(err error) bool {
	status := client.StatusOf(err)
	switch {
	case status == 0, status >= 500:
		return false
	case status == http.StatusUnauthorized, status == http.StatusRequestTimeout, status == http.StatusTooManyRequests:
		return false
	default:
		return status >= 400
	}
}

// Flush replays the entries of the signed-in cashier in order and returns how
// many were recorded. Entries of other cashiers wait for them. Entries that
// fail again stay queued, except permanent rejections, which move to the
// rejected list.
func (q *Queue) Flush(ctx context.Context) (int, error) {
	q.flushMu.Lock()
	defer q.flushMu.Unlock()

	batch := q.replayable()
	if len(batch) == 0 {
		return 0, nil
	}

	done := make(map[string]bool, len(batch))
	refused := make(map[string]string)
	var errs []error
	for _, e := range batch {
		reqCtx, cancel := context.WithTimeout(ctx, q.timeout)
		_, err := q.recorder.CreateSale(reqCtx, e.SaleRequest)
		cancel()
		if err == nil {
			done[e.Reference] = true
			continue
		}
		errs = append(errs, fmt.Errorf("sale %s: %w", e.Reference, err))
		if Permanent(err) {
			refused[e.Reference] = err.Error()
			q.logger.Error("sale rejected by the sales service",
				zap.String("reference", e.Reference),
				zap.Int64("cashier_id", e.CashierID),
				zap.Error(err))
		}
	}

	q.mu.Lock()
	kept := q.pending[:0]
	for _, p := range q.pending {
		switch {
		case done[p.Reference]:
		case refused[p.Reference] != "":
			p.Reason = refused[p.Reference]
			q.rejected = append(q.rejected, p)
		default:
			kept = append(kept, p)
		}
	}
	q.pending = kept
	pending := snapshot(q.pending)
	rejected := snapshot(q.rejected)
	q.mu.Unlock()

	q.persist(ctx, StorageKey, pending)
	if len(refused) > 0 {
		q.persist(ctx, RejectedKey, rejected)
	}
	if len(done) > 0 {
		q.logger.Info("outbox flushed", zap.Int("recorded", len(done)), zap.Int("pending", len(pending)))
	}
	return len(done), errors.Join(errs...)
}

func (q *Queue) replayable() []Entry {
	all := q.Pending()
	if q.identity == nil {
		return all
	}
	current, ok := q.identity.Identity()
	if !ok {
		return nil
	}
	var out []Entry
	for _, e := range all {
		if e.CashierID == current.ID {
			out = append(out, e)
		}
	}
	return out
}

func (q *Queue) persist(ctx context.Context, key string, entries []Entry) {
	if q.storage == nil {
		return
	}
	var err error
	if len(entries) == 0 {
		err = q.storage.Delete(ctx, key)
	} else {
		var raw []byte
		raw, err = json.Marshal(entries)
		if err == nil {
			err = q.storage.Set(ctx, key, string(raw))
		}
	}
	if err != nil {
		q.logger.Error("persist outbox", zap.String("key", key), zap.Error(err))
	}
}

// Start replays the queue every interval until Stop is called. A run that
// overlaps the previous one is skipped.
func (q *Queue) Start(interval time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.scheduler != nil {
		return errors.New("outbox already started")
	}

	s := gocron.NewScheduler(time.UTC)
	_, err := s.Every(interval).SingletonMode().Do(func() {
		if _, err := q.Flush(context.Background()); err != nil {
			q.logger.Warn("outbox flush incomplete", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("schedule outbox: %w", err)
	}
	s.StartAsync()
	q.scheduler = s
	return nil
}

func (q *Queue) Stop() {
	q.mu.Lock()
	s := q.scheduler
	q.scheduler = nil
	q.mu.Unlock()
	if s != nil {
		s.Stop()
	}
}
