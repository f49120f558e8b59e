package subscription

import (
	"context"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"pinksync/internal/contract"
	"pinksync/internal/ledger"
	"pinksync/internal/platform/metrics"
	"pinksync/pkg/domain"
	dErrors "pinksync/pkg/domain-errors"
)

// Deliverer pushes one event to one consumer endpoint. It must return within
// the caller's context deadline; a late ack counts as a failed attempt.
type Deliverer interface {
	Deliver(ctx context.Context, sub Subscription, event contract.Event) error
}

// Ledger is the slice of the audit ledger the service writes through.
type Ledger interface {
	Append(ctx context.Context, entryType ledger.EntryType, payload any) (ledger.Entry, error)
}

// DeliveryConfig tunes the per-subscription delivery workers.
type DeliveryConfig struct {
	AckSLA         time.Duration
	MaxAttempts    int
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	QueueSize      int
}

// subscriber pairs a subscription with its FIFO queue. One worker goroutine
// drains each queue, so per-subscription delivery order is the acceptance
// order.
type subscriber struct {
	sub   Subscription
	queue chan contract.Event
}

// Service owns the subscription table and the delivery workers.
type Service struct {
	deliverer Deliverer
	ledger    Ledger
	logger    *slog.Logger
	metrics   *metrics.Metrics
	cfg       DeliveryConfig

	mu    sync.RWMutex
	subs  map[uuid.UUID]*subscriber
	byKey map[string]uuid.UUID

	wg  sync.WaitGroup
	now func() time.Time
}

type Option func(*Service)

// WithClock overrides the time source for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithMetrics attaches delivery counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func NewService(deliverer Deliverer, led Ledger, logger *slog.Logger, cfg DeliveryConfig, opts ...Option) *Service {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	s := &Service{
		deliverer: deliverer,
		ledger:    led,
		logger:    logger,
		cfg:       cfg,
		subs:      make(map[uuid.UUID]*subscriber),
		byKey:     make(map[string]uuid.UUID),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// subscriptionRecord is the ledger payload for subscription lifecycle.
type subscriptionRecord struct {
	SubscriptionID string `json:"subscription_id"`
	ConsumerID     string `json:"consumer_id"`
	FilterKey      string `json:"filter_key"`
	Reason         string `json:"reason,omitempty"`
}

// Subscribe registers a filter for a consumer. A second active subscription
// with an equivalent filter for the same consumer is a conflict. A zero ttl
// means the subscription lives until cancelled.
func (s *Service) Subscribe(ctx context.Context, consumerID domain.ConsumerID, endpoint string, filter Filter, ttl time.Duration) (*Subscription, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	if endpoint != "" {
		if _, err := url.ParseRequestURI(endpoint); err != nil {
			return nil, dErrors.New(dErrors.CodeInvalidInput, "endpoint is not a valid URL")
		}
	}
	if ttl < 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "ttl cannot be negative")
	}
	key := consumerID.String() + "#" + filter.Key()

	s.mu.Lock()
	if _, exists := s.byKey[key]; exists {
		s.mu.Unlock()
		return nil, dErrors.Newf(dErrors.CodeConflict, "consumer %s already holds an active subscription with this filter", consumerID)
	}
	sub := Subscription{
		ID:         uuid.New(),
		ConsumerID: consumerID,
		Endpoint:   endpoint,
		Filter:     filter,
		Status:     StatusActive,
		CreatedAt:  s.now().UTC(),
	}
	if ttl > 0 {
		expires := sub.CreatedAt.Add(ttl)
		sub.ExpiresAt = &expires
	}
	entry := &subscriber{sub: sub, queue: make(chan contract.Event, s.cfg.QueueSize)}
	s.subs[sub.ID] = entry
	s.byKey[key] = sub.ID
	s.mu.Unlock()

	s.wg.Add(1)
	go s.deliverLoop(entry)

	if _, err := s.ledger.Append(ctx, ledger.TypeSubscriptionCreated, subscriptionRecord{
		SubscriptionID: sub.ID.String(),
		ConsumerID:     consumerID.String(),
		FilterKey:      filter.Key(),
	}); err != nil {
		// An unledgered subscription must not stay active. Removing the map
		// entries first keeps Publish off the queue before it closes.
		s.mu.Lock()
		delete(s.subs, sub.ID)
		delete(s.byKey, key)
		s.mu.Unlock()
		close(entry.queue)
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.ActiveSubscriptions.Inc()
	}
	s.logger.InfoContext(ctx, "subscription created",
		"subscription_id", sub.ID.String(),
		"consumer_id", consumerID.String(),
	)
	return &sub, nil
}

// Cancel removes a subscription. Only the owning consumer may cancel it.
func (s *Service) Cancel(ctx context.Context, consumerID domain.ConsumerID, subID uuid.UUID) error {
	s.mu.Lock()
	entry, ok := s.subs[subID]
	if !ok {
		s.mu.Unlock()
		return dErrors.Newf(dErrors.CodeNotFound, "subscription %s does not exist", subID)
	}
	if entry.sub.ConsumerID != consumerID {
		s.mu.Unlock()
		return dErrors.New(dErrors.CodeUnauthorized, "subscription belongs to a different consumer")
	}
	delete(s.subs, subID)
	delete(s.byKey, consumerID.String()+"#"+entry.sub.Filter.Key())
	close(entry.queue)
	s.mu.Unlock()

	if _, err := s.ledger.Append(ctx, ledger.TypeSubscriptionExpired, subscriptionRecord{
		SubscriptionID: subID.String(),
		ConsumerID:     consumerID.String(),
		FilterKey:      entry.sub.Filter.Key(),
		Reason:         "cancelled",
	}); err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.ActiveSubscriptions.Dec()
	}
	return nil
}

// List returns the active, unexpired subscriptions for one consumer.
func (s *Service) List(_ context.Context, consumerID domain.ConsumerID) []Subscription {
	now := s.now().UTC()
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Subscription
	for _, entry := range s.subs {
		if entry.sub.ConsumerID == consumerID && !entry.sub.expired(now) {
			out = append(out, entry.sub)
		}
	}
	return out
}

// Publish enqueues the event for every matching subscription. It never blocks
// the intake path: a full queue drops the event for that subscriber, and the
// drop is ledgered so the loss stays observable. Expired subscriptions are
// reaped lazily here.
func (s *Service) Publish(ctx context.Context, event contract.Event) {
	now := s.now().UTC()
	var expired []uuid.UUID
	var dropped []Subscription

	s.mu.RLock()
	for id, entry := range s.subs {
		if entry.sub.expired(now) {
			expired = append(expired, id)
			continue
		}
		if !entry.sub.Filter.Matches(event) {
			continue
		}
		select {
		case entry.queue <- event:
		default:
			dropped = append(dropped, entry.sub)
		}
	}
	s.mu.RUnlock()

	for _, sub := range dropped {
		s.noteDrop(ctx, sub, event)
	}
	for _, id := range expired {
		s.reap(ctx, id)
	}
}

// noteDrop records a queue-overflow loss. The subscription stays active; the
// failure entry is what keeps the loss auditable.
func (s *Service) noteDrop(ctx context.Context, sub Subscription, event contract.Event) {
	if s.metrics != nil {
		s.metrics.DeliveryFailures.Inc()
	}
	s.logger.WarnContext(ctx, "subscription queue full, event dropped",
		"subscription_id", sub.ID.String(),
		"event_id", event.EventID,
	)
	if _, err := s.ledger.Append(ctx, ledger.TypeDeliveryFailed, deliveryFailureRecord{
		SubscriptionID: sub.ID.String(),
		ConsumerID:     sub.ConsumerID.String(),
		EventID:        event.EventID,
		Reason:         "queue_full",
	}); err != nil {
		s.logger.ErrorContext(ctx, "failed to ledger delivery failure", "error", err)
	}
}

// reap removes one expired subscription and ledgers the expiry.
func (s *Service) reap(ctx context.Context, subID uuid.UUID) {
	s.mu.Lock()
	entry, ok := s.subs[subID]
	if !ok {
		s.mu.Unlock()
		return
	}
	delete(s.subs, subID)
	delete(s.byKey, entry.sub.ConsumerID.String()+"#"+entry.sub.Filter.Key())
	close(entry.queue)
	s.mu.Unlock()

	if _, err := s.ledger.Append(ctx, ledger.TypeSubscriptionExpired, subscriptionRecord{
		SubscriptionID: subID.String(),
		ConsumerID:     entry.sub.ConsumerID.String(),
		FilterKey:      entry.sub.Filter.Key(),
		Reason:         "expired",
	}); err != nil {
		s.logger.ErrorContext(ctx, "failed to ledger subscription expiry",
			"subscription_id", subID.String(), "error", err)
	}
	if s.metrics != nil {
		s.metrics.ActiveSubscriptions.Dec()
	}
	s.logger.InfoContext(ctx, "subscription expired",
		"subscription_id", subID.String(),
		"consumer_id", entry.sub.ConsumerID.String(),
	)
}

// Shutdown closes all queues and waits for in-flight deliveries to finish.
func (s *Service) Shutdown() {
	s.mu.Lock()
	for id, entry := range s.subs {
		close(entry.queue)
		delete(s.subs, id)
	}
	s.byKey = make(map[string]uuid.UUID)
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Service) deliverLoop(entry *subscriber) {
	defer s.wg.Done()
	for event := range entry.queue {
		s.deliver(entry.sub, event)
	}
}

// deliveryFailureRecord is the ledger payload for lost deliveries, whether
// the queue overflowed or retries ran out.
type deliveryFailureRecord struct {
	SubscriptionID string `json:"subscription_id"`
	ConsumerID     string `json:"consumer_id"`
	EventID        string `json:"event_id"`
	Reason         string `json:"reason"`
	Attempts       int    `json:"attempts,omitempty"`
	Error          string `json:"error,omitempty"`
}

// deliver pushes one event with bounded retries. Exhaustion is ledgered; the
// subscription stays active.
func (s *Service) deliver(sub Subscription, event contract.Event) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.cfg.BackoffInitial
	policy.MaxInterval = s.cfg.BackoffMax
	policy.MaxElapsedTime = 0

	attempts := 0
	err := backoff.Retry(func() error {
		attempts++
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.AckSLA)
		defer cancel()
		return s.deliverer.Deliver(ctx, sub, event)
	}, backoff.WithMaxRetries(policy, uint64(s.cfg.MaxAttempts-1)))

	if err == nil {
		if s.metrics != nil {
			s.metrics.Deliveries.Inc()
		}
		return
	}

	if s.metrics != nil {
		s.metrics.DeliveryFailures.Inc()
	}
	s.logger.Error("delivery exhausted retries",
		"subscription_id", sub.ID.String(),
		"event_id", event.EventID,
		"attempts", attempts,
		"error", err,
	)
	if _, lerr := s.ledger.Append(context.Background(), ledger.TypeDeliveryFailed, deliveryFailureRecord{
		SubscriptionID: sub.ID.String(),
		ConsumerID:     sub.ConsumerID.String(),
		EventID:        event.EventID,
		Reason:         "retries_exhausted",
		Attempts:       attempts,
		Error:          err.Error(),
	}); lerr != nil {
		s.logger.Error("failed to ledger delivery failure", "error", lerr)
	}
}
