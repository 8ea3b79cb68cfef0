package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencdp/profile-engine/domain"
	"github.com/opencdp/profile-engine/internal/enrich"
	"github.com/opencdp/profile-engine/repository/memory"
	"github.com/opencdp/profile-engine/usecase/match"
	"github.com/opencdp/profile-engine/usecase/track"
)

type capturingPublisher struct {
	mu     sync.Mutex
	events []*domain.EnrichedEvent
	fail   bool
}

func (p *capturingPublisher) PublishEnriched(event *domain.EnrichedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("broker unavailable")
	}
	p.events = append(p.events, event)
	return nil
}

func (p *capturingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

type noopCache struct{}

func (noopCache) Get(context.Context, string, string, string) *domain.Profile  { return nil }
func (noopCache) Put(context.Context, string, string, string, *domain.Profile) {}
func (noopCache) Evict(context.Context, string, string, string)                {}

type consumerFixture struct {
	consumer *Consumer
	pubsub   *gochannel.GoChannel
	mappings *memory.MappingRepository
	pub      *capturingPublisher
}

func newConsumerFixture(t *testing.T) *consumerFixture {
	t.Helper()

	profiles := memory.NewProfileRepository()
	mappings := memory.NewMappingRepository()
	masters := memory.NewMasterProfileRepository()
	tracker := track.New(profiles, mappings, masters, match.New(profiles, nil), noopCache{}, nil, nil)

	// Persistent so events published before the consumer subscribes are
	// still delivered.
	pubsub := gochannel.NewGoChannel(gochannel.Config{Persistent: true}, watermill.NopLogger{})
	pub := &capturingPublisher{}

	return &consumerFixture{
		consumer: New(pubsub, pub, enrich.New(nil), tracker, "events.raw", nil),
		pubsub:   pubsub,
		mappings: mappings,
		pub:      pub,
	}
}

func (f *consumerFixture) publishRaw(t *testing.T, payload []byte) {
	t.Helper()
	require.NoError(t, f.pubsub.Publish("events.raw", message.NewMessage(watermill.NewUUID(), payload)))
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestConsumerResolvesValidEvent(t *testing.T) {
	f := newConsumerFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = f.consumer.Run(ctx) }()

	payload, err := json.Marshal(domain.IdentityEvent{
		TenantID: "t1",
		AppID:    "app",
		UserID:   "u1",
		Type:     "identify",
		Traits:   &domain.Traits{Email: "a@x.com"},
	})
	require.NoError(t, err)
	f.publishRaw(t, payload)

	waitFor(t, func() bool {
		exists, err := f.mappings.Exists(context.Background(), "t1", "app", "u1")
		return err == nil && exists
	})
	assert.Equal(t, 1, f.pub.count())
}

func TestConsumerDropsInvalidAndUndecodableEvents(t *testing.T) {
	f := newConsumerFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = f.consumer.Run(ctx) }()

	f.publishRaw(t, []byte("not json"))
	// missing tenant_id
	f.publishRaw(t, []byte(`{"app_id":"app","user_id":"u1","type":"identify"}`))

	valid, err := json.Marshal(domain.IdentityEvent{
		TenantID: "t1",
		AppID:    "app",
		UserID:   "u2",
		Type:     "identify",
	})
	require.NoError(t, err)
	f.publishRaw(t, valid)

	waitFor(t, func() bool {
		exists, err := f.mappings.Exists(context.Background(), "t1", "app", "u2")
		return err == nil && exists
	})
	// only the valid event was enriched and republished
	assert.Equal(t, 1, f.pub.count())
}

func TestConsumerContinuesWhenEnrichedPublishFails(t *testing.T) {
	f := newConsumerFixture(t)
	f.pub.fail = true
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = f.consumer.Run(ctx) }()

	payload, err := json.Marshal(domain.IdentityEvent{
		TenantID: "t1",
		AppID:    "app",
		UserID:   "u3",
		Type:     "identify",
	})
	require.NoError(t, err)
	f.publishRaw(t, payload)

	waitFor(t, func() bool {
		exists, err := f.mappings.Exists(context.Background(), "t1", "app", "u3")
		return err == nil && exists
	})
	assert.Zero(t, f.pub.count())
}
