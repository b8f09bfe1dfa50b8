package sync

import (
	"context"
	"errors"
	"fmt"
	gosync "sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/cyberguard/cyberguard/internal/logger"
	"github.com/cyberguard/cyberguard/internal/mailbox"
	"github.com/cyberguard/cyberguard/internal/model"
	"github.com/cyberguard/cyberguard/internal/store"
)

// storeTimeout bounds the store writes made for each delivered snapshot.
const storeTimeout = 5 * time.Second

var (
	// ErrNotPolling is returned by RefreshNow when no loop is running.
	ErrNotPolling = errors.New("not polling")

	// ErrClosed is returned once the session has been closed.
	ErrClosed = errors.New("session closed")

	// ErrNoIdentity is returned when the session has no current identity.
	ErrNoIdentity = errors.New("no current identity")
)

// InboxService is the part of mailbox.Service a session drives.
type InboxService interface {
	GenerateIdentity(ctx context.Context) (*model.Identity, error)
	FetchInbox(ctx context.Context, identity *model.Identity) ([]model.InboxMessage, error)
	Discard(ctx context.Context, identity *model.Identity) error
}

var _ InboxService = (*mailbox.Service)(nil)

// InboxUpdateMsg is a tea.Msg sent for every delivered snapshot and every
// failed fetch.
type InboxUpdateMsg struct {
	Address  string
	Messages []model.InboxMessage
	NewCount int
	Err      error
}

// Session owns the current identity and its single polling loop. It is
// the surface the UI layer talks to.
type Session struct {
	svc     InboxService
	poller  *Poller
	store   store.Store
	logger  *zap.Logger
	updates chan InboxUpdateMsg

	// opMu serializes lifecycle operations. Deliveries never take it, so
	// stopping a handle from under opMu cannot deadlock with onUpdate.
	opMu gosync.Mutex

	mu       gosync.Mutex
	identity *model.Identity
	handle   *Handle
	closed   bool
}

// NewSession creates a session. st may be nil, in which case snapshots
// are not persisted and no notifications are raised.
func NewSession(svc InboxService, poller *Poller, st store.Store, l *zap.Logger) *Session {
	if poller == nil {
		poller = New()
	}
	return &Session{
		svc:     svc,
		poller:  poller,
		store:   st,
		logger:  logger.OrNop(l),
		updates: make(chan InboxUpdateMsg, 16),
	}
}

// GenerateIdentity stops the current poller, discards the current
// identity and provisions a new one. If provisioning fails the session is
// left without an identity.
func (s *Session) GenerateIdentity(ctx context.Context) (*model.Identity, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if s.isClosed() {
		return nil, ErrClosed
	}
	s.stopLocked()

	s.mu.Lock()
	prev := s.identity
	s.identity = nil
	s.mu.Unlock()
	s.forget(ctx, prev)

	identity, err := s.svc.GenerateIdentity(ctx)
	if err != nil {
		return nil, err
	}

	if s.store != nil {
		if err := s.store.SaveIdentity(ctx, *identity); err != nil {
			s.logger.Warn("saving identity failed",
				zap.String("address", identity.Address),
				zap.Error(err),
			)
		}
	}

	s.mu.Lock()
	s.identity = identity
	s.mu.Unlock()

	cp := *identity
	return &cp, nil
}

// Discard deletes the current mailbox at the provider, stops polling it
// and forgets it locally. On failure the identity stays current.
func (s *Session) Discard(ctx context.Context) (*model.Identity, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if s.isClosed() {
		return nil, ErrClosed
	}
	identity := s.Identity()
	if identity == nil {
		return nil, ErrNoIdentity
	}

	if err := s.svc.Discard(ctx, identity); err != nil {
		return nil, err
	}
	s.stopLocked()

	s.mu.Lock()
	s.identity = nil
	s.mu.Unlock()
	s.forget(ctx, identity)

	return identity, nil
}

// forget drops a discarded identity with its stored inbox and
// notifications.
func (s *Session) forget(ctx context.Context, identity *model.Identity) {
	if identity == nil || s.store == nil {
		return
	}
	err := s.store.DeleteIdentity(ctx, identity.Address)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		s.logger.Warn("forgetting identity failed",
			zap.String("address", identity.Address),
			zap.Error(err),
		)
	}
}

// PruneStale removes identities left in the store by earlier runs. Tokens
// are never persisted, so those mailboxes cannot be polled again. It
// returns the number removed.
func (s *Session) PruneStale(ctx context.Context) (int, error) {
	if s.store == nil {
		return 0, nil
	}

	stored, err := s.store.GetIdentities(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing stored identities: %w", err)
	}

	current := s.Identity()
	removed := 0
	for _, id := range stored {
		if current != nil && id.Address == current.Address {
			continue
		}
		if err := s.store.DeleteIdentity(ctx, id.Address); err != nil && !errors.Is(err, store.ErrNotFound) {
			return removed, fmt.Errorf("removing identity %s: %w", id.Address, err)
		}
		removed++
	}
	return removed, nil
}

// Inbox returns the last snapshot stored for the current identity.
func (s *Session) Inbox(ctx context.Context) ([]model.InboxMessage, error) {
	identity := s.Identity()
	if identity == nil {
		return nil, ErrNoIdentity
	}
	if s.store == nil {
		return nil, nil
	}
	return s.store.GetInbox(ctx, identity.Address)
}

// Notifications returns the unread new-mail notifications and marks them
// read.
func (s *Session) Notifications(ctx context.Context) ([]model.Notification, error) {
	if s.store == nil {
		return nil, nil
	}

	notes, err := s.store.GetUnreadNotifications(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing notifications: %w", err)
	}
	for _, n := range notes {
		if err := s.store.MarkNotificationRead(ctx, n.ID); err != nil {
			return notes, fmt.Errorf("marking notification %s read: %w", n.ID, err)
		}
	}
	return notes, nil
}

// StartPolling begins polling identity's inbox, replacing any running
// loop. onMessages may be nil when updates are consumed from Updates or
// WaitForNextUpdate instead.
func (s *Session) StartPolling(identity *model.Identity, onMessages UpdateFunc) error {
	if identity == nil || identity.Token == "" {
		return mailbox.ErrNoToken
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()

	if s.isClosed() {
		return ErrClosed
	}
	s.stopLocked()

	id := *identity
	fetch := func(ctx context.Context) ([]model.InboxMessage, error) {
		return s.svc.FetchInbox(ctx, &id)
	}
	onUpdate := func(msgs []model.InboxMessage) {
		s.deliver(id.Address, msgs, onMessages)
	}
	onError := func(err error) {
		s.report(id.Address, err)
	}

	h := s.poller.Start(fetch, onUpdate, WithOnError(onError))

	s.mu.Lock()
	s.identity = &id
	s.handle = h
	s.mu.Unlock()

	s.logger.Info("polling inbox", zap.String("address", id.Address))
	return nil
}

// StopPolling stops the running loop, if any.
func (s *Session) StopPolling() {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	s.stopLocked()
}

// RefreshNow fetches the inbox immediately, outside the schedule.
func (s *Session) RefreshNow(ctx context.Context) ([]model.InboxMessage, error) {
	s.mu.Lock()
	h := s.handle
	s.mu.Unlock()

	if h == nil {
		return nil, ErrNotPolling
	}
	return s.poller.Refresh(ctx, h)
}

// Identity returns a copy of the current identity, or nil.
func (s *Session) Identity() *model.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.identity == nil {
		return nil
	}
	cp := *s.identity
	return &cp
}

// Updates exposes the update channel for callers outside Bubble Tea.
func (s *Session) Updates() <-chan InboxUpdateMsg {
	return s.updates
}

// WaitForNextUpdate returns a tea.Cmd that waits for the next inbox
// update. Call it again after handling each InboxUpdateMsg to keep
// listening.
func (s *Session) WaitForNextUpdate() tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-s.updates
		if !ok {
			return nil
		}
		return msg
	}
}

// Close stops polling and releases the update channel. The remote
// account is left alone; discarding it is an explicit operation.
func (s *Session) Close() {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if s.isClosed() {
		return
	}
	s.stopLocked()

	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	close(s.updates)
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// stopLocked stops the current handle. Callers hold opMu.
func (s *Session) stopLocked() {
	s.mu.Lock()
	h := s.handle
	s.handle = nil
	s.mu.Unlock()

	s.poller.Stop(h)
}

// deliver persists a snapshot, raises notifications for new messages and
// fans the snapshot out. It runs under the handle's delivery lock.
func (s *Session) deliver(address string, msgs []model.InboxMessage, onMessages UpdateFunc) {
	newCount := 0

	if s.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()

		fresh, err := s.store.ReplaceInbox(ctx, address, msgs)
		if err != nil {
			s.logger.Warn("storing inbox failed", zap.String("address", address), zap.Error(err))
		}
		newCount = len(fresh)

		if newCount > 0 {
			byID := make(map[string]model.InboxMessage, len(msgs))
			for _, m := range msgs {
				byID[m.ID] = m
			}
			for _, id := range fresh {
				m := byID[id]
				n := model.Notification{
					MessageID: m.ID,
					Address:   address,
					Message:   fmt.Sprintf("New message from %s: %s", m.Sender, m.Subject),
					CreatedAt: time.Now(),
				}
				if err := s.store.CreateNotification(ctx, n); err != nil {
					s.logger.Warn("creating notification failed", zap.Error(err))
				}
			}
		}
	}

	if onMessages != nil {
		onMessages(msgs)
	}

	s.send(InboxUpdateMsg{Address: address, Messages: msgs, NewCount: newCount})
}

func (s *Session) report(address string, err error) {
	if mailbox.IsRetryable(err) {
		s.logger.Debug("inbox fetch will be retried on the next tick", zap.Error(err))
	} else {
		s.logger.Error("inbox fetch failed", zap.String("address", address), zap.Error(err))
	}
	s.send(InboxUpdateMsg{Address: address, Err: err})
}

// send pushes msg without blocking; updates are dropped when the channel
// is full.
func (s *Session) send(msg InboxUpdateMsg) {
	select {
	case s.updates <- msg:
	default:
	}
}
