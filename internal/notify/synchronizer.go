// Package notify turns new chat messages addressed to the signed-in user
// into notifications.
//
// A Synchronizer listens to every thread the user takes part in, and to the
// latest message of each of those threads. Every message id is handled at
// most once: the set of handled ids is persisted locally so notifications
// never resurrect after they were dismissed, even across restarts.
package notify

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/matheus3301/thriveup/internal/bus"
	"github.com/matheus3301/thriveup/internal/chat"
	"github.com/matheus3301/thriveup/internal/docstore"
	"github.com/matheus3301/thriveup/internal/metrics"
	"github.com/matheus3301/thriveup/internal/model"
	"github.com/matheus3301/thriveup/internal/status"
	"go.uber.org/zap"
)

var (
	// ErrNotStarted is returned by operations that need a signed-in user
	// before Start was called with one.
	ErrNotStarted = errors.New("synchronizer not started")
	// ErrUnknownSender is returned by OpenChat for a sender without a
	// users document.
	ErrUnknownSender = errors.New("unknown sender")
)

// HandledStore persists the handled message ids, and the dismissed ids
// whose mirrored documents are not deleted yet.
type HandledStore interface {
	HandledNotificationIDs() ([]string, error)
	SaveHandledNotificationIDs(ids []string) error
	DismissedNotificationIDs() ([]string, error)
	SaveDismissedNotificationIDs(ids []string) error
}

// Synchronizer maintains the notification working set of one user session.
type Synchronizer struct {
	store   docstore.Store
	chats   *chat.Manager
	handled HandledStore
	bus     *bus.Bus
	machine *status.Machine
	logger  *zap.Logger

	persistMu sync.Mutex

	mu            sync.Mutex
	starting      bool
	userID        string
	handledIDs    map[string]struct{}
	handledOrder  []string
	inflight      map[string]struct{}
	dismissed     []string
	notifications []model.NotificationItem
	listeners     map[string]func()
	cancel        context.CancelFunc
	wg            sync.WaitGroup
}

// NewSynchronizer creates an idle synchronizer.
func NewSynchronizer(store docstore.Store, chats *chat.Manager, handled HandledStore, b *bus.Bus, logger *zap.Logger) *Synchronizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if b == nil {
		b = bus.New()
	}
	return &Synchronizer{
		store:      store,
		chats:      chats,
		handled:    handled,
		bus:        b,
		machine:    status.NewMachine(b),
		logger:     logger,
		handledIDs: make(map[string]struct{}),
		inflight:   make(map[string]struct{}),
		listeners:  make(map[string]func()),
	}
}

// State returns the session state.
func (s *Synchronizer) State() status.State {
	return s.machine.Current()
}

// UserID returns the user the synchronizer was started for.
func (s *Synchronizer) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

// Notifications returns a copy of the working set in arrival order.
func (s *Synchronizer) Notifications() []model.NotificationItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.notifications)
}

// Start begins listening for userID. An empty userID means nobody is
// signed in: Start logs it and does nothing.
func (s *Synchronizer) Start(ctx context.Context, userID string) error {
	if userID == "" {
		s.logger.Info("not logged in, notification synchronizer stays idle")
		return nil
	}
	s.mu.Lock()
	if st := s.machine.Current(); s.starting || st != status.Idle {
		s.mu.Unlock()
		return fmt.Errorf("%w: start from %s", status.ErrInvalidTransition, st)
	}
	s.starting = true
	s.mu.Unlock()

	ids, err := s.handled.HandledNotificationIDs()
	if err != nil {
		s.releaseStart()
		return fmt.Errorf("load handled notification ids: %w", err)
	}
	dismissed, err := s.handled.DismissedNotificationIDs()
	if err != nil {
		s.releaseStart()
		return fmt.Errorf("load dismissed notification ids: %w", err)
	}
	return s.listen(ctx, userID, ids, dismissed)
}

func (s *Synchronizer) releaseStart() {
	s.mu.Lock()
	s.starting = false
	s.mu.Unlock()
}

func (s *Synchronizer) listen(ctx context.Context, userID string, ids, dismissed []string) error {
	pending := s.purgeDismissed(ctx, dismissed)
	restored := s.restore(ctx, userID, pending)

	s.mu.Lock()
	s.userID = userID
	for _, id := range ids {
		s.markHandledLocked(id)
	}
	for _, id := range pending {
		s.markHandledLocked(id)
	}
	for _, n := range restored {
		s.markHandledLocked(n.ID)
	}
	s.dismissed = pending
	s.notifications = append(s.notifications, restored...)
	s.mu.Unlock()

	if len(pending) != len(dismissed) {
		s.persistDismissed()
	}

	if err := s.machine.Transition(status.Listening); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	snaps, stop := s.store.Listen(ctx, docstore.Collection(model.Chats).
		Where("participants", docstore.OpArrayContains, userID))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer stop()
		for snap := range snaps {
			if snap.Err != nil {
				s.logger.Error("thread listener failed", zap.Error(snap.Err), zap.String("user_id", userID))
				continue
			}
			s.reconcile(ctx, snap.Docs)
		}
	}()

	s.logger.Info("notification synchronizer started",
		zap.String("user_id", userID),
		zap.Int("handled", len(ids)),
		zap.Int("restored", len(restored)),
		zap.Int("pending_deletes", len(pending)))
	return nil
}

// Stop tears down every listener and waits for them to exit.
func (s *Synchronizer) Stop() {
	switch s.machine.Current() {
	case status.Idle, status.Listening:
		if err := s.machine.Transition(status.Stopped); err != nil {
			s.logger.Warn("failed to stop synchronizer", zap.Error(err))
		}
	default:
		return
	}

	s.mu.Lock()
	cancel := s.cancel
	listeners := s.listeners
	s.listeners = make(map[string]func())
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	for _, stop := range listeners {
		stop()
	}
	s.wg.Wait()
	metrics.SetThreadListeners(0)
	s.logger.Info("notification synchronizer stopped")
}

// purgeDismissed retries deleting the mirrored documents of dismissed
// notifications. It returns the ids whose delete failed again.
func (s *Synchronizer) purgeDismissed(ctx context.Context, ids []string) []string {
	var pending []string
	for _, id := range ids {
		if err := s.store.Delete(ctx, model.Notifications, id); err != nil {
			s.logger.Warn("failed to delete dismissed notification", zap.Error(err), zap.String("msg_id", id))
			pending = append(pending, id)
		}
	}
	return pending
}

// restore reads back the notifications mirrored for userID by an earlier
// session, leaving out dismissed ids. Failures are logged and yield nothing.
func (s *Synchronizer) restore(ctx context.Context, userID string, dismissed []string) []model.NotificationItem {
	docs, err := s.store.Query(ctx, docstore.Collection(model.Notifications).
		Where("recipientId", docstore.OpEqual, userID))
	if err != nil {
		s.logger.Warn("failed to restore notifications", zap.Error(err), zap.String("user_id", userID))
		return nil
	}
	items := make([]model.NotificationItem, 0, len(docs))
	for _, d := range docs {
		if slices.Contains(dismissed, d.ID) {
			continue
		}
		items = append(items, model.NotificationFromDoc(d))
	}
	slices.SortStableFunc(items, func(a, b model.NotificationItem) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
	return items
}

// reconcile keeps exactly one latest-message listener per thread in docs.
func (s *Synchronizer) reconcile(ctx context.Context, docs []docstore.Document) {
	current := make(map[string]struct{}, len(docs))
	for _, d := range docs {
		current[d.ID] = struct{}{}
	}

	s.mu.Lock()
	if ctx.Err() != nil {
		s.mu.Unlock()
		return
	}
	var stale []func()
	for id, stop := range s.listeners {
		if _, ok := current[id]; !ok {
			stale = append(stale, stop)
			delete(s.listeners, id)
		}
	}
	for _, d := range docs {
		if _, ok := s.listeners[d.ID]; ok {
			continue
		}
		s.listeners[d.ID] = s.listenThread(ctx, d.ID)
	}
	n := len(s.listeners)
	s.mu.Unlock()

	for _, stop := range stale {
		stop()
	}
	metrics.SetThreadListeners(n)
}

// listenThread starts the latest-message listener of a thread. Called with
// s.mu held; it only registers the goroutine.
func (s *Synchronizer) listenThread(ctx context.Context, threadID string) func() {
	snaps, stop := s.store.Listen(ctx, docstore.Collection(model.MessagesPath(threadID)).
		Order("timestamp", true).Take(1))
	s.logger.Debug("listening for messages",
		zap.String("thread_id", threadID),
		zap.String("stage", string(status.StageListeningMessages)))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for snap := range snaps {
			if snap.Err != nil {
				s.logger.Error("message listener failed", zap.Error(snap.Err), zap.String("thread_id", threadID))
				continue
			}
			if len(snap.Docs) == 0 {
				continue
			}
			s.handleMessage(ctx, threadID, snap.Docs[0])
		}
	}()
	return stop
}

func (s *Synchronizer) markHandledLocked(id string) {
	if _, ok := s.handledIDs[id]; ok {
		return
	}
	s.handledIDs[id] = struct{}{}
	s.handledOrder = append(s.handledOrder, id)
}

// persistHandled writes the current handled set. Writers are serialized so
// an older set never overwrites a newer one.
func (s *Synchronizer) persistHandled() {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.Lock()
	ids := slices.Clone(s.handledOrder)
	s.mu.Unlock()

	if err := s.handled.SaveHandledNotificationIDs(ids); err != nil {
		s.logger.Error("failed to persist handled notification ids", zap.Error(err), zap.Int("count", len(ids)))
	}
}

func (s *Synchronizer) persistDismissed() {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.Lock()
	ids := slices.Clone(s.dismissed)
	s.mu.Unlock()

	if err := s.handled.SaveDismissedNotificationIDs(ids); err != nil {
		s.logger.Error("failed to persist dismissed notification ids", zap.Error(err), zap.Int("count", len(ids)))
	}
}
