package bus

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/AgentSquad/internal/domain"
)

const (
	// DefaultClosedRetention — сколько хранится закрытый correlation ID.
	DefaultClosedRetention = time.Hour

	// minPruneAt — размер закрытого набора, с которого CloseCorrelation
	// начинает чистить устаревшие записи.
	minPruneAt = 1024
)

// Callback получает доставленное сообщение.
type Callback func(msg domain.Message)

type subscription struct {
	id uint64
	cb Callback
}

// Bus — in-process шина сообщений.
type Bus struct {
	inboxes     map[string][]domain.Message
	known       map[string]bool
	subscribers map[string][]subscription
	taps        []subscription
	closed      map[string]time.Time
	pruneAt     int
	nextSub     uint64
	mu          sync.RWMutex

	retention time.Duration
	validate  bool
	clock    func() time.Time
	logger   *slog.Logger
}

// Config — конфигурация Bus.
type Config struct {
	// ValidateRecipients включает ErrUnknownRecipient для Send.
	// Известны получатели, вызвавшие Register или Subscribe.
	ValidateRecipients bool

	// ClosedRetention — через сколько закрытый correlation ID снова
	// принимается (default: 1h).
	ClosedRetention time.Duration

	// Clock — источник времени (default: time.Now).
	Clock func() time.Time

	// Logger
	Logger *slog.Logger
}

// New создаёт пустую шину.
func New(cfg Config) *Bus {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ClosedRetention <= 0 {
		cfg.ClosedRetention = DefaultClosedRetention
	}

	return &Bus{
		inboxes:     make(map[string][]domain.Message),
		known:       make(map[string]bool),
		subscribers: make(map[string][]subscription),
		closed:      make(map[string]time.Time),
		pruneAt:     minPruneAt,
		retention:   cfg.ClosedRetention,
		validate:    cfg.ValidateRecipients,
		clock:       cfg.Clock,
		logger:      cfg.Logger,
	}
}

// Register объявляет получателя известным без подписки.
func (b *Bus) Register(recipientID string) {
	b.mu.Lock()
	b.known[recipientID] = true
	b.mu.Unlock()
}

// Send кладёт сообщение в inbox получателя и вызывает его подписчиков.
func (b *Bus) Send(senderID, recipientID, body string, kind domain.MessageKind, correlationID string) (domain.Message, error) {
	if recipientID == "" {
		return domain.Message{}, ErrEmptyRecipient
	}
	msg, err := b.newMessage(senderID, recipientID, body, kind, correlationID)
	if err != nil {
		return domain.Message{}, err
	}

	if err := b.deliver(msg); err != nil {
		return domain.Message{}, err
	}
	return msg, nil
}

// Broadcast доставляет сообщение всем подписанным получателям, кроме отправителя.
// Возвращает сообщение и число получателей.
func (b *Bus) Broadcast(senderID, body string, kind domain.MessageKind, correlationID string) (domain.Message, int, error) {
	msg, err := b.newMessage(senderID, "", body, kind, correlationID)
	if err != nil {
		return domain.Message{}, 0, err
	}

	n, err := b.broadcast(msg)
	if err != nil {
		return domain.Message{}, 0, err
	}
	return msg, n, nil
}

// Relay доставляет уже построенное сообщение, сохраняя его ID и время.
// Используется мостом для сообщений из другого процесса.
func (b *Bus) Relay(msg domain.Message) error {
	if !msg.Kind.IsValid() {
		return fmt.Errorf("%w: %s", ErrInvalidKind, msg.Kind)
	}
	if msg.IsBroadcast() {
		_, err := b.broadcast(msg)
		return err
	}
	return b.deliver(msg)
}

func (b *Bus) newMessage(senderID, recipientID, body string, kind domain.MessageKind, correlationID string) (domain.Message, error) {
	if !kind.IsValid() {
		return domain.Message{}, fmt.Errorf("%w: %s", ErrInvalidKind, kind)
	}
	return domain.Message{
		ID:            uuid.New(),
		SenderID:      senderID,
		RecipientID:   recipientID,
		Body:          body,
		Kind:          kind,
		CorrelationID: correlationID,
		Timestamp:     b.clock(),
	}, nil
}

// deliver — точка-точка. Колбэки вызываются после снятия блокировки.
func (b *Bus) deliver(msg domain.Message) error {
	b.mu.Lock()
	if msg.CorrelationID != "" && b.isClosedLocked(msg.CorrelationID) {
		b.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrCorrelationClosed, msg.CorrelationID)
	}
	if b.validate && !b.known[msg.RecipientID] {
		b.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownRecipient, msg.RecipientID)
	}

	b.inboxes[msg.RecipientID] = append(b.inboxes[msg.RecipientID], msg)
	callbacks := b.callbacksLocked(msg.RecipientID)
	b.mu.Unlock()

	for _, cb := range callbacks {
		cb(msg)
	}
	return nil
}

func (b *Bus) broadcast(msg domain.Message) (int, error) {
	b.mu.Lock()
	if msg.CorrelationID != "" && b.isClosedLocked(msg.CorrelationID) {
		b.mu.Unlock()
		return 0, fmt.Errorf("%w: %s", ErrCorrelationClosed, msg.CorrelationID)
	}

	recipients := make([]string, 0, len(b.subscribers))
	for id, subs := range b.subscribers {
		if id != msg.SenderID && len(subs) > 0 {
			recipients = append(recipients, id)
		}
	}
	sort.Strings(recipients)

	var callbacks []Callback
	for _, id := range recipients {
		b.inboxes[id] = append(b.inboxes[id], msg)
		for _, s := range b.subscribers[id] {
			callbacks = append(callbacks, s.cb)
		}
	}
	for _, t := range b.taps {
		callbacks = append(callbacks, t.cb)
	}
	b.mu.Unlock()

	for _, cb := range callbacks {
		cb(msg)
	}
	return len(recipients), nil
}

// callbacksLocked — подписчики получателя и taps. Вызывать под b.mu.
func (b *Bus) callbacksLocked(recipientID string) []Callback {
	subs := b.subscribers[recipientID]
	out := make([]Callback, 0, len(subs)+len(b.taps))
	for _, s := range subs {
		out = append(out, s.cb)
	}
	for _, t := range b.taps {
		out = append(out, t.cb)
	}
	return out
}

// GetMessages возвращает сообщения inbox с Timestamp >= since в порядке
// вставки. limit <= 0 означает без ограничения.
func (b *Bus) GetMessages(recipientID string, since time.Time, limit int) []domain.Message {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]domain.Message, 0)
	for _, msg := range b.inboxes[recipientID] {
		if msg.Timestamp.Before(since) {
			continue
		}
		out = append(out, msg)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// GetConversation возвращает точка-точка сообщения между idA и idB,
// отсортированные по времени.
func (b *Bus) GetConversation(idA, idB string) []domain.Message {
	b.mu.RLock()
	out := make([]domain.Message, 0)
	for _, msg := range b.inboxes[idA] {
		if !msg.IsBroadcast() && msg.SenderID == idB {
			out = append(out, msg)
		}
	}
	if idA != idB {
		for _, msg := range b.inboxes[idB] {
			if !msg.IsBroadcast() && msg.SenderID == idA {
				out = append(out, msg)
			}
		}
	}
	b.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

// Subscribe регистрирует колбэк для получателя. Возвращает функцию отписки.
func (b *Bus) Subscribe(recipientID string, cb Callback) (unsubscribe func()) {
	b.mu.Lock()
	b.nextSub++
	id := b.nextSub
	b.subscribers[recipientID] = append(b.subscribers[recipientID], subscription{id: id, cb: cb})
	b.known[recipientID] = true
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		subs := b.subscribers[recipientID]
		for i, s := range subs {
			if s.id == id {
				b.subscribers[recipientID] = append(subs[:i:i], subs[i+1:]...)
				break
			}
		}
		if len(b.subscribers[recipientID]) == 0 {
			delete(b.subscribers, recipientID)
		}
	}
}

// Tap регистрирует наблюдателя всех доставленных сообщений.
func (b *Bus) Tap(cb Callback) (untap func()) {
	b.mu.Lock()
	b.nextSub++
	id := b.nextSub
	b.taps = append(b.taps, subscription{id: id, cb: cb})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		for i, t := range b.taps {
			if t.id == id {
				b.taps = append(b.taps[:i:i], b.taps[i+1:]...)
				break
			}
		}
	}
}

// CloseCorrelation запрещает новые сообщения с этим correlation ID.
// Уже доставленные сообщения остаются в inbox.
func (b *Bus) CloseCorrelation(correlationID string) {
	if correlationID == "" {
		return
	}
	now := b.clock()

	b.mu.Lock()
	b.closed[correlationID] = now
	if len(b.closed) >= b.pruneAt {
		b.pruneLocked(now)
		b.pruneAt = max(2*len(b.closed), minPruneAt)
	}
	b.mu.Unlock()

	b.logger.Debug("correlation closed", "correlation_id", correlationID)
}

// PruneClosed удаляет закрытые correlation ID старше ClosedRetention.
// Возвращает число удалённых записей.
func (b *Bus) PruneClosed() int {
	now := b.clock()

	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pruneLocked(now)
}

// ClosedCount возвращает размер набора закрытых correlation ID.
func (b *Bus) ClosedCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.closed)
}

func (b *Bus) isClosedLocked(correlationID string) bool {
	at, ok := b.closed[correlationID]
	return ok && b.clock().Sub(at) < b.retention
}

func (b *Bus) pruneLocked(now time.Time) int {
	removed := 0
	for id, at := range b.closed {
		if now.Sub(at) >= b.retention {
			delete(b.closed, id)
			removed++
		}
	}
	return removed
}

// IsKnown проверяет, зарегистрирован ли получатель.
func (b *Bus) IsKnown(recipientID string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.known[recipientID]
}
