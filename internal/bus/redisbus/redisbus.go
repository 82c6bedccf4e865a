// Package redisbus implements the Bus on Redis Streams. Each subscription
// reads through a consumer group and acknowledges only after the handler
// succeeds, so unacknowledged entries stay pending and are replayed to the
// consumer on restart. That gives at-least-once delivery per group.
package redisbus

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/redis/rueidis"

	"github.com/markjakearzadon/walletpay-gobackend.git/internal/bus"
)

const payloadField = "payload"

type Config struct {
	// Addr is the Redis server address, e.g. "localhost:6379".
	Addr     string
	Username string
	Password string
	// Group is the consumer group name; each service uses its own group so
	// both receive every event.
	Group string
	// Consumer identifies this process within the group.
	Consumer string
	// Block is how long a read blocks waiting for new entries.
	Block time.Duration
	// BatchSize is the maximum entries claimed per read.
	BatchSize int64
	// PendingReplay is how often this consumer's pending entries are
	// replayed, so an entry whose handler failed is retried without
	// waiting for a restart.
	PendingReplay time.Duration
}

func DefaultConfig(addr, group, consumer string) Config {
	return Config{
		Addr:          addr,
		Group:         group,
		Consumer:      consumer,
		Block:         5 * time.Second,
		BatchSize:     10,
		PendingReplay: time.Minute,
	}
}

// readID picks the stream position for the next read: ">" for new entries,
// or "0" when the periodic replay of this consumer's pending entries is due.
func (c Config) readID(lastReplay, now time.Time) (string, time.Time) {
	if now.Sub(lastReplay) >= c.PendingReplay {
		return "0", now
	}
	return ">", lastReplay
}

type RedisBus struct {
	client rueidis.Client
	cfg    Config

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfg Config) (*RedisBus, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redisbus: no address configured")
	}
	if cfg.Group == "" {
		return nil, fmt.Errorf("redisbus: no consumer group configured")
	}
	if cfg.Block <= 0 {
		cfg.Block = 5 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.PendingReplay <= 0 {
		cfg.PendingReplay = time.Minute
	}

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress: []string{cfg.Addr},
		Username:    cfg.Username,
		Password:    cfg.Password,
		// Blocking stream reads do not mix with server-assisted caching.
		DisableCache: true,
	})
	if err != nil {
		return nil, fmt.Errorf("redisbus: failed to create client: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &RedisBus{client: client, cfg: cfg, ctx: ctx, cancel: cancel}, nil
}

func (b *RedisBus) Publish(ctx context.Context, topic string, payload []byte) error {
	cmd := b.client.B().Xadd().Key(topic).Id("*").
		FieldValue().FieldValue(payloadField, string(payload)).Build()
	if err := b.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("failed to publish to %s: %v", topic, err)
	}
	return nil
}

func (b *RedisBus) Subscribe(topic string, h bus.Handler) error {
	if err := b.ensureGroup(topic); err != nil {
		return err
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		// Drain entries left pending by a previous run of this consumer
		// before asking for new ones.
		b.consume(topic, h, "0")
		b.consumeLoop(topic, h)
	}()
	return nil
}

func (b *RedisBus) Close() error {
	b.cancel()
	b.wg.Wait()
	b.client.Close()
	return nil
}

func (b *RedisBus) ensureGroup(topic string) error {
	cmd := b.client.B().XgroupCreate().Key(topic).Group(b.cfg.Group).Id("0").Mkstream().Build()
	if err := b.client.Do(b.ctx, cmd).Error(); err != nil {
		if strings.Contains(err.Error(), "BUSYGROUP") {
			return nil
		}
		return fmt.Errorf("failed to create group %s on %s: %v", b.cfg.Group, topic, err)
	}
	return nil
}

func (b *RedisBus) consumeLoop(topic string, h bus.Handler) {
	lastReplay := time.Now()
	for {
		select {
		case <-b.ctx.Done():
			return
		default:
		}
		var id string
		id, lastReplay = b.cfg.readID(lastReplay, time.Now())
		b.consume(topic, h, id)
	}
}

// consume reads one batch for this consumer. id ">" asks for new entries;
// id "0" replays this consumer's pending entries.
func (b *RedisBus) consume(topic string, h bus.Handler, id string) {
	cmd := b.client.B().Xreadgroup().Group(b.cfg.Group, b.cfg.Consumer).
		Count(b.cfg.BatchSize).Block(b.cfg.Block.Milliseconds()).
		Streams().Key(topic).Id(id).Build()

	res := b.client.Do(b.ctx, cmd)
	if err := res.Error(); err != nil {
		if rueidis.IsRedisNil(err) || b.ctx.Err() != nil {
			return
		}
		log.Printf("Failed to read from %s: %v", topic, err)
		time.Sleep(time.Second)
		return
	}

	streams, err := res.AsXRead()
	if err != nil {
		log.Printf("Failed to decode entries from %s: %v", topic, err)
		return
	}

	for _, entries := range streams {
		for _, entry := range entries {
			payload, ok := entry.FieldValues[payloadField]
			if !ok {
				// Foreign entry on the stream; ack so it does not wedge the
				// pending list.
				b.ack(topic, entry.ID)
				continue
			}
			if err := h(b.ctx, []byte(payload)); err != nil {
				log.Printf("Handler for %s failed on entry %s: %v", topic, entry.ID, err)
				// No ack: the entry stays pending and is replayed.
				continue
			}
			b.ack(topic, entry.ID)
		}
	}
}

func (b *RedisBus) ack(topic, id string) {
	cmd := b.client.B().Xack().Key(topic).Group(b.cfg.Group).Id(id).Build()
	if err := b.client.Do(b.ctx, cmd).Error(); err != nil {
		log.Printf("Failed to ack %s on %s: %v", id, topic, err)
	}
}
