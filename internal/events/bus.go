package events

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// Handler processes one delivered message's field map. Returning an error
// stops the consumer; with the message unacknowledged it is redelivered,
// so handlers must only fail on conditions worth crashing over, such as
// malformed payloads or exhausted store retries.
type Handler func(ctx context.Context, values map[string]interface{}) error

// Bus is the Redis Streams event bus. Inbound, each topic gets its own
// consumer-group reader. Outbound, all events funnel through one bounded
// queue drained by a single goroutine, so the published stream keeps the
// exact enqueue order and a slow broker backpressures the coordinators.
type Bus struct {
	rdb    *redis.Client
	prefix string
	out    chan Outbound

	mu      sync.Mutex
	streams map[string]string
}

// NewBus wires a bus over the given client. prefix namespaces the stream
// keys, e.g. "bank:" turns topic "balance_changed" into "bank:balance_changed".
func NewBus(rdb *redis.Client, prefix string) *Bus {
	return &Bus{
		rdb:    rdb,
		prefix: prefix,
		// Capacity 1 on purpose: publishing one event blocks the next
		// enqueue until the publisher has picked the previous one up.
		out:     make(chan Outbound, 1),
		streams: make(map[string]string),
	}
}

// Publish enqueues an event for the serialized publisher. It blocks while
// the queue is full, which couples coordinator throughput to publish
// latency in exchange for a strictly ordered outbound stream.
func (b *Bus) Publish(e Outbound) {
	b.out <- e
}

// Run drains the outbound queue until ctx is cancelled, publishing events
// strictly in enqueue order. On cancellation any event still sitting in
// the queue is flushed before returning, so a graceful shutdown never
// drops an accepted publish.
func (b *Bus) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return b.flush(ctx.Err())
		case e := <-b.out:
			if err := b.publish(ctx, e); err != nil {
				return err
			}
		}
	}
}

func (b *Bus) flush(cause error) error {
	for {
		select {
		case e := <-b.out:
			if err := b.publish(context.Background(), e); err != nil {
				return err
			}
		default:
			return cause
		}
	}
}

func (b *Bus) publish(ctx context.Context, e Outbound) error {
	values := make(map[string]interface{}, len(e.Fields)+1)
	for k, v := range e.Fields {
		values[k] = v
	}
	values["key"] = e.Key

	return b.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: b.stream(e.Topic),
		Values: values,
	}).Err()
}

// stream resolves and caches the stream key for a topic; resolution happens
// once per topic per process.
func (b *Bus) stream(topic string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.streams[topic]
	if !ok {
		s = b.prefix + topic
		b.streams[topic] = s
	}
	return s
}

// Consume reads the topic through the named consumer group and hands every
// delivery to h, acknowledging only on success. Deliveries are therefore
// at-least-once; idempotent outcome records downstream absorb replays.
// Consume blocks until ctx is cancelled or a fatal handler error occurs.
func (b *Bus) Consume(ctx context.Context, topic, group, consumer string, h Handler) error {
	stream := b.stream(topic)

	err := b.rdb.XGroupCreateMkStream(ctx, stream, group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return err
	}

	log.Printf("[BUS] Consuming %s as %s/%s", topic, group, consumer)

	// A crash between delivery and ack leaves the message in this
	// consumer's pending-entries list, where a ">" read never sees it
	// again. Replay the backlog from id "0" first; once it is empty,
	// switch to new messages.
	id := "0"
	for {
		res, err := b.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    group,
			Consumer: consumer,
			Streams:  []string{stream, id},
			Count:    1,
			Block:    5 * time.Second,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				if id != ">" {
					id = ">"
				}
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("[BUS] Read error on %s: %v", topic, err)
			continue
		}

		delivered := 0
		for _, s := range res {
			for _, msg := range s.Messages {
				if err := h(ctx, msg.Values); err != nil {
					return err
				}
				if err := b.rdb.XAck(ctx, stream, group, msg.ID).Err(); err != nil {
					log.Printf("[BUS] Ack failed on %s id %s: %v", topic, msg.ID, err)
				}
				delivered++
			}
		}
		if id != ">" && delivered == 0 {
			id = ">"
		}
	}
}
