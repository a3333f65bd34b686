package pubsub

import (
	"context"
	"errors"
	"sync"

	pubsub "cloud.google.com/go/pubsub/v2"
)

// Result is the pending server ack for one message.
type Result interface {
	Get(context.Context) (string, error)
}

// Publisher sends messages to a single topic.
type Publisher interface {
	Publish(context.Context, *pubsub.Message) Result
}

type topicSource interface {
	Publisher(name string) *pubsub.Publisher
}

// Publishers hands out one ordered publisher per topic and stops them all on
// Stop. Messages sharing an ordering key are delivered in publish order.
type Publishers struct {
	source topicSource

	mu    sync.Mutex
	cache map[string]*orderedPublisher
}

func NewPublishers(source topicSource) *Publishers {
	return &Publishers{source: source, cache: map[string]*orderedPublisher{}}
}

// For returns nil when the topic cannot be resolved.
func (p *Publishers) For(topic string) Publisher {
	p.mu.Lock()
	defer p.mu.Unlock()
	if cached, ok := p.cache[topic]; ok {
		return cached
	}
	if p.source == nil {
		return nil
	}
	raw := p.source.Publisher(topic)
	if raw == nil {
		return nil
	}
	raw.EnableMessageOrdering = true
	pub := &orderedPublisher{raw: raw}
	p.cache[topic] = pub
	return pub
}

// Stop flushes and stops every publisher handed out so far.
func (p *Publishers) Stop() {
	p.mu.Lock()
	cached := p.cache
	p.cache = map[string]*orderedPublisher{}
	p.mu.Unlock()

	for _, pub := range cached {
		pub.raw.Stop()
	}
}

type orderedPublisher struct {
	raw *pubsub.Publisher
}

func (o *orderedPublisher) Publish(ctx context.Context, msg *pubsub.Message) Result {
	return &orderedResult{
		pending: o.raw.Publish(ctx, msg),
		resume:  func() { o.raw.ResumePublish(msg.OrderingKey) },
	}
}

// orderedResult resumes the ordering key after a failure; the client pauses
// a key on error and rejects later messages for it until resumed.
type orderedResult struct {
	pending *pubsub.PublishResult
	resume  func()
}

var errNoResult = errors.New("publish result is nil")

func (r *orderedResult) Get(ctx context.Context) (string, error) {
	if r.pending == nil {
		return "", errNoResult
	}
	id, err := r.pending.Get(ctx)
	if err != nil {
		r.resume()
	}
	return id, err
}
