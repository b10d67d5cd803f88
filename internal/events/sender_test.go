package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"smartcampus/internal/domain"
	"smartcampus/internal/pkg/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockPublisher struct {
	mock.Mock
	mu   sync.Mutex
	sent []Envelope
}

func (m *MockPublisher) Publish(ctx context.Context, eventType string, key, data []byte) error {
	args := m.Called(eventType, string(key))
	if args.Error(0) == nil {
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			return err
		}
		m.mu.Lock()
		m.sent = append(m.sent, env)
		m.mu.Unlock()
	}
	return args.Error(0)
}

type fakeProvider struct {
	mu     sync.Mutex
	events []domain.OutboxEvent
	done   map[uuid.UUID]bool
	failed map[uuid.UUID]int
}

func newFakeProvider(events ...domain.OutboxEvent) *fakeProvider {
	return &fakeProvider{events: events, done: map[uuid.UUID]bool{}, failed: map[uuid.UUID]int{}}
}

func (f *fakeProvider) FetchNew(_ context.Context, limit int) ([]domain.OutboxEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.OutboxEvent
	for _, e := range f.events {
		if !f.done[e.ID] && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeProvider) MarkDone(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.done[id] = true
	return nil
}

func (f *fakeProvider) MarkFailed(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed[id]++
	return nil
}

func outboxEvent(t domain.EventType, aggregateID int64) domain.OutboxEvent {
	return domain.OutboxEvent{
		ID:          uuid.New(),
		Type:        t,
		AggregateID: aggregateID,
		Payload:     []byte(`{"reservation_id":1}`),
		Status:      domain.EventNew,
		CreatedAt:   time.Now().UTC(),
	}
}

func TestSender_TickPublishesAndMarksDone(t *testing.T) {
	created := outboxEvent(domain.EventReservationCreated, 1)
	approved := outboxEvent(domain.EventReservationApproved, 1)
	other := outboxEvent(domain.EventReservationCreated, 2)
	provider := newFakeProvider(created, approved, other)

	pub := new(MockPublisher)
	pub.On("Publish", mock.Anything, mock.Anything).Return(nil)

	s := NewSender(logger.Discard(), pub, provider, nil)
	s.Tick(context.Background(), 10)

	pub.AssertNumberOfCalls(t, "Publish", 3)
	pub.AssertCalled(t, "Publish", "reservation.created", "1")
	pub.AssertCalled(t, "Publish", "reservation.created", "2")
	assert.True(t, provider.done[created.ID])
	assert.True(t, provider.done[approved.ID])
	assert.True(t, provider.done[other.ID])

	var forOne []domain.EventType
	for _, env := range pub.sent {
		if env.AggregateID == 1 {
			forOne = append(forOne, env.Type)
		}
	}
	assert.Equal(t, []domain.EventType{domain.EventReservationCreated, domain.EventReservationApproved}, forOne)
}

func TestSender_FailureKeepsOrderAndRetries(t *testing.T) {
	created := outboxEvent(domain.EventReservationCreated, 5)
	canceled := outboxEvent(domain.EventReservationCanceled, 5)
	provider := newFakeProvider(created, canceled)

	pub := new(MockPublisher)
	pub.On("Publish", "reservation.created", "5").Return(errors.New("broker down")).Once()
	pub.On("Publish", mock.Anything, mock.Anything).Return(nil)

	s := NewSender(logger.Discard(), pub, provider, nil)

	s.Tick(context.Background(), 10)
	assert.False(t, provider.done[created.ID])
	assert.False(t, provider.done[canceled.ID])
	assert.Equal(t, 1, provider.failed[created.ID])
	pub.AssertNumberOfCalls(t, "Publish", 1)

	s.Tick(context.Background(), 10)
	assert.True(t, provider.done[created.ID])
	assert.True(t, provider.done[canceled.ID])
}

func TestSender_StartProducingStopsOnCancel(t *testing.T) {
	provider := newFakeProvider(outboxEvent(domain.EventReservationRejected, 9))
	pub := new(MockPublisher)
	pub.On("Publish", mock.Anything, mock.Anything).Return(nil)

	ctx, cancel := context.WithCancel(context.Background())
	s := NewSender(logger.Discard(), pub, provider, nil)
	s.StartProducing(ctx, 10, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		provider.mu.Lock()
		defer provider.mu.Unlock()
		return len(provider.done) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("sender did not stop")
	}
}
