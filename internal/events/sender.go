package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"smartcampus/internal/domain"
	"smartcampus/internal/pkg/logger/sl"

	"github.com/google/uuid"
)

// Publisher delivers one message to the broker. key is the routing/partition key.
type Publisher interface {
	Publish(ctx context.Context, eventType string, key, data []byte) error
}

type EventProvider interface {
	FetchNew(ctx context.Context, limit int) ([]domain.OutboxEvent, error)
	MarkDone(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID) error
}

// Observer is notified about every delivery attempt.
type Observer interface {
	EventPublished(eventType string, ok bool)
}

// Sender relays outbox events to a Publisher. Events of one reservation are published
// in creation order; failed events stay "new" and are retried on the next tick.
type Sender struct {
	log       *slog.Logger
	publisher Publisher
	provider  EventProvider
	observer  Observer
	done      chan struct{}
}

func NewSender(log *slog.Logger, publisher Publisher, provider EventProvider, observer Observer) *Sender {
	return &Sender{
		log:       log,
		publisher: publisher,
		provider:  provider,
		observer:  observer,
		done:      make(chan struct{}),
	}
}

// StartProducing polls the outbox every interval until ctx is canceled.
// Done is closed once the loop has exited.
func (s *Sender) StartProducing(ctx context.Context, limit int, interval time.Duration) {
	const op = "events.Sender.StartProducing"
	log := s.log.With(slog.String("op", op))

	log.Info("starting producing events", slog.Int("limit", limit), slog.Duration("interval", interval))

	go func() {
		ticker := time.NewTicker(interval)
		defer func() {
			ticker.Stop()
			log.Info("stopping event producing")
			close(s.done)
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Tick(ctx, limit)
			}
		}
	}()
}

func (s *Sender) Done() <-chan struct{} {
	return s.done
}

// Tick publishes one batch.
func (s *Sender) Tick(ctx context.Context, limit int) {
	const op = "events.Sender.Tick"
	log := s.log.With(slog.String("op", op))

	events, err := s.provider.FetchNew(ctx, limit)
	if err != nil {
		log.Error("failed to get new events", sl.Err(err))
		return
	}

	byAggregate := make(map[int64][]domain.OutboxEvent)
	var order []int64
	for _, e := range events {
		if _, ok := byAggregate[e.AggregateID]; !ok {
			order = append(order, e.AggregateID)
		}
		byAggregate[e.AggregateID] = append(byAggregate[e.AggregateID], e)
	}

	wg := &sync.WaitGroup{}
	for _, id := range order {
		wg.Add(1)
		go s.processAggregate(ctx, wg, byAggregate[id])
	}
	wg.Wait()
}

func (s *Sender) processAggregate(ctx context.Context, wg *sync.WaitGroup, events []domain.OutboxEvent) {
	defer wg.Done()

	for _, e := range events {
		if !s.processEvent(ctx, e) {
			// keep per-reservation order: later events wait for the next tick
			return
		}
	}
}

func (s *Sender) processEvent(ctx context.Context, event domain.OutboxEvent) bool {
	const op = "events.Sender.processEvent"
	log := s.log.With(
		slog.String("op", op),
		slog.String("event_id", event.ID.String()),
		slog.String("event_type", string(event.Type)),
	)

	body, err := json.Marshal(NewEnvelope(event))
	if err != nil {
		log.Error("failed to encode event", sl.Err(err))
		return false
	}

	key := []byte(strconv.FormatInt(event.AggregateID, 10))
	if err := s.publisher.Publish(ctx, string(event.Type), key, body); err != nil {
		log.Error("failed to publish event", sl.Err(err), slog.Int("attempts", event.Attempts+1))
		s.observe(event, false)
		if err := s.provider.MarkFailed(ctx, event.ID); err != nil {
			log.Error("failed to record failed attempt", sl.Err(err))
		}
		return false
	}
	s.observe(event, true)

	if err := s.provider.MarkDone(ctx, event.ID); err != nil {
		log.Error("failed to mark event as done", sl.Err(err))
		return false
	}
	return true
}

func (s *Sender) observe(event domain.OutboxEvent, ok bool) {
	if s.observer != nil {
		s.observer.EventPublished(string(event.Type), ok)
	}
}
