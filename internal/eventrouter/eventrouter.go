// Package eventrouter implements C9: event fan-out from writers to whatever
// live channel a target account is bound to, in-process or cross-instance
// (SPEC_FULL.md §4.9).
package eventrouter

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/jutuon/afrodite-backend-sub001/internal/accountcache"
	"github.com/jutuon/afrodite-backend-sub001/internal/identity"
	"github.com/jutuon/afrodite-backend-sub001/internal/moderation"
	"github.com/jutuon/afrodite-backend-sub001/internal/platform/redisx"
	"github.com/jutuon/afrodite-backend-sub001/internal/platform/resilience"
	"github.com/jutuon/afrodite-backend-sub001/internal/realtime"
	"github.com/segmentio/kafka-go"
)

// pending-notification bitmask bits, one per coalescable event family
// (SPEC_FULL.md §4.3/§4.9).
const (
	PendingLikesChanged uint64 = 1 << iota
	PendingReceivedBlocksChanged
	PendingAccountStateChanged
	PendingNewsChanged
	PendingContentProcessingChanged
)

func bitFor(kind realtime.EventKind) uint64 {
	switch kind {
	case realtime.EventLikesChanged:
		return PendingLikesChanged
	case realtime.EventReceivedBlocksChanged:
		return PendingReceivedBlocksChanged
	case realtime.EventAccountStateChanged, realtime.EventAccountCapabilitiesChanged:
		return PendingAccountStateChanged
	case realtime.EventNewsChanged:
		return PendingNewsChanged
	case realtime.EventContentProcessingStateChanged, realtime.EventInitialContentModerationCompleted:
		return PendingContentProcessingChanged
	default:
		return 0
	}
}

// LocalHub is the subset of realtime.Hub the router and consumer need.
type LocalHub interface {
	DeliverLocal(account int64, event realtime.EventToClient) bool
	Broadcast(event realtime.EventToClient)
}

// broadcastAccount is the sentinel Account value meaning "every account",
// used on the wire by PublishBroadcast/Consumer. Internal account ids start
// at 1 (see identity.Repository.nextInternalID), so 0 is never a real one.
const broadcastAccount = 0

// Router implements the writer-facing EventEmitter interfaces of C4, C6 and
// C7, delivering locally when possible and falling back to a single shared
// Kafka topic (grounded in shared-entity/kafka/dlq_producer.go's
// producer-per-topic pattern, collapsed to one topic here so Consumer below
// can tail it with a single reader) for cross-instance fan-out.
type Router struct {
	hub           LocalHub
	cache         *accountcache.Cache
	writer        *kafka.Writer
	breaker       *resilience.Breaker
	redis         *redisx.Client
	deadLetterTTL time.Duration
}

func New(hub LocalHub, cache *accountcache.Cache, brokers []string, topic string, redisClient *redisx.Client, deadLetterTTL time.Duration) *Router {
	var writer *kafka.Writer
	if len(brokers) > 0 && topic != "" {
		writer = &kafka.Writer{Addr: kafka.TCP(brokers...), Topic: topic, Balancer: &kafka.LeastBytes{}}
	}
	return &Router{
		hub: hub, cache: cache, writer: writer,
		breaker:       resilience.New(resilience.DefaultConfig("eventrouter.kafka")),
		redis:         redisClient,
		deadLetterTTL: deadLetterTTL,
	}
}

// Publish delivers event to account's live channel if bound on this
// process; otherwise it fans the event out via Kafka for any other
// instance that might hold the channel, and folds the event kind into the
// account's pending-notification bitmask. Nothing on the connect path reads
// that bitmask back (accountcache.Entry.DrainPendingNotify has no caller).
func (r *Router) Publish(ctx context.Context, account identity.InternalAccountID, event realtime.EventToClient) {
	event.Account = int64(account)
	if r.hub != nil && r.hub.DeliverLocal(int64(account), event) {
		return
	}

	if r.cache != nil {
		if entry, err := r.cache.Get(account); err == nil {
			entry.SetPendingNotify(bitFor(event.Kind))
		}
	}

	if r.writer == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	writeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	msg := kafka.Message{Key: []byte(strconv.FormatInt(int64(account), 10)), Value: payload, Time: time.Now()}
	_, err = r.breaker.Execute(writeCtx, func() (any, error) {
		return nil, r.writer.WriteMessages(writeCtx, msg)
	})
	if err != nil {
		slog.Error("event publish failed", "account", account, "error", err)
		r.deadLetter(ctx, account, payload)
	}
}

// deadLetter stashes an event this instance failed to publish (broker down,
// breaker open) in Redis under a short TTL, grounded in
// shared-entity/kafka/dlq_producer.go's dead-letter fallback: the teacher
// writes unpublishable messages to a side store instead of dropping them
// silently so an operator can inspect or replay what Kafka missed.
func (r *Router) deadLetter(ctx context.Context, account identity.InternalAccountID, payload []byte) {
	if r.redis == nil || r.deadLetterTTL <= 0 {
		return
	}
	key := "eventrouter:dlq:" + strconv.FormatInt(int64(account), 10) + ":" + strconv.FormatInt(time.Now().UnixNano(), 10)
	if err := r.redis.Set(ctx, key, payload, r.deadLetterTTL); err != nil {
		slog.Error("event dead-letter write failed", "account", account, "error", err)
	}
}

// PublishBroadcast delivers event to every account with a channel bound on
// this instance and, if Kafka is configured, fans it out to every other
// instance so accounts bound elsewhere receive it too. Used for
// account-agnostic events (news) rather than Publish's single-account
// target.
func (r *Router) PublishBroadcast(ctx context.Context, event realtime.EventToClient) {
	event.Account = broadcastAccount
	if r.hub != nil {
		r.hub.Broadcast(event)
	}

	if r.writer == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	writeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	msg := kafka.Message{Key: []byte("broadcast"), Value: payload, Time: time.Now()}
	_, err = r.breaker.Execute(writeCtx, func() (any, error) {
		return nil, r.writer.WriteMessages(writeCtx, msg)
	})
	if err != nil {
		slog.Error("event broadcast publish failed", "error", err)
		r.deadLetter(ctx, broadcastAccount, payload)
	}
}

func (r *Router) Close() {
	if r.writer != nil {
		r.writer.Close()
	}
}

// --- interaction.EventEmitter ---

func (r *Router) LikesChanged(ctx context.Context, accounts ...identity.InternalAccountID) {
	for _, a := range accounts {
		r.Publish(ctx, a, realtime.EventToClient{Kind: realtime.EventLikesChanged})
	}
}

func (r *Router) ReceivedBlocksChanged(ctx context.Context, account identity.InternalAccountID) {
	r.Publish(ctx, account, realtime.EventToClient{Kind: realtime.EventReceivedBlocksChanged})
}

// --- messagequeue.EventEmitter ---

func (r *Router) NewMessageReceived(ctx context.Context, receiver identity.InternalAccountID, sender identity.InternalAccountID, clientID int64) {
	r.Publish(ctx, receiver, realtime.EventToClient{Kind: realtime.EventNewMessageReceived, Sender: int64(sender), ClientID: clientID})
}

// --- moderation.EventEmitter ---

func (r *Router) AccountStateChanged(ctx context.Context, account identity.InternalAccountID) {
	r.Publish(ctx, account, realtime.EventToClient{Kind: realtime.EventAccountStateChanged})
}

func (r *Router) InitialContentModerationCompleted(ctx context.Context, account identity.InternalAccountID) {
	r.Publish(ctx, account, realtime.EventToClient{Kind: realtime.EventInitialContentModerationCompleted})
}

func (r *Router) ContentProcessingStateChanged(ctx context.Context, account identity.InternalAccountID, kind moderation.QueueKind, state moderation.State) {
	r.Publish(ctx, account, realtime.EventToClient{Kind: realtime.EventContentProcessingStateChanged})
}

// AccountCapabilitiesChanged is emitted directly by C10 callers through
// Publish since it carries no extra typed fields beyond Account.
func (r *Router) AccountCapabilitiesChanged(ctx context.Context, account identity.InternalAccountID) {
	r.Publish(ctx, account, realtime.EventToClient{Kind: realtime.EventAccountCapabilitiesChanged})
}

// NewsChanged fans a published/edited news item out to every connected
// account, not a single target (news.Item has no per-account subject).
func (r *Router) NewsChanged(ctx context.Context) {
	r.PublishBroadcast(ctx, realtime.EventToClient{Kind: realtime.EventNewsChanged})
}
