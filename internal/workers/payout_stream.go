package workers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	apperrors "github.com/open-builders/adkamai/internal/common/errors"
	"github.com/open-builders/adkamai/internal/common/logger"
	accountmodels "github.com/open-builders/adkamai/internal/features/account/models"
	"github.com/open-builders/adkamai/internal/features/bot/models"
	"github.com/open-builders/adkamai/internal/features/bot/router"
)

const (
	eventPayoutRequested = "payout_requested"
	streamMaxLen         = 10000
	// defaultRetryAfter is how long an undelivered entry stays pending before
	// it is claimed again.
	defaultRetryAfter = time.Minute
)

// PayoutPublisher appends recorded payouts to a Redis stream.
type PayoutPublisher struct {
	rdb    *redis.Client
	stream string
}

func NewPayoutPublisher(rdb *redis.Client, stream string) *PayoutPublisher {
	return &PayoutPublisher{rdb: rdb, stream: stream}
}

func (p *PayoutPublisher) Publish(ctx context.Context, payout *accountmodels.Payout) error {
	data, err := json.Marshal(payout)
	if err != nil {
		return fmt.Errorf("marshal payout: %w", err)
	}
	err = p.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"type":   eventPayoutRequested,
			"payout": string(data),
		},
	}).Err()
	if err != nil {
		return apperrors.NewCacheError("publish payout", err).WithDetail("payout_id", payout.ID)
	}
	return nil
}

// PayoutForwarder reads the payout stream in a consumer group and forwards
// each request to the operator's chat. An entry is acknowledged only once the
// operator has it; failed deliveries stay pending and are claimed again by
// Reclaim, including entries left behind by consumers that went away.
type PayoutForwarder struct {
	rdb        *redis.Client
	stream     string
	group      string
	consumer   string
	sender     router.Sender
	adminID    int64
	retryAfter time.Duration
	log        zerolog.Logger
}

func NewPayoutForwarder(rdb *redis.Client, stream, group, consumer string, sender router.Sender, adminID int64) *PayoutForwarder {
	return &PayoutForwarder{
		rdb:        rdb,
		stream:     stream,
		group:      group,
		consumer:   consumer,
		sender:     sender,
		adminID:    adminID,
		retryAfter: defaultRetryAfter,
		log:        logger.Component("payout-forwarder"),
	}
}

// EnsureGroup creates the consumer group and the stream if needed.
func (w *PayoutForwarder) EnsureGroup(ctx context.Context) error {
	err := w.rdb.XGroupCreateMkStream(ctx, w.stream, w.group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return apperrors.NewCacheError("create consumer group", err)
	}
	return nil
}

// Start consumes until ctx is cancelled.
func (w *PayoutForwarder) Start(ctx context.Context) {
	if err := w.EnsureGroup(ctx); err != nil {
		w.log.Error().Err(err).Msg("Payout forwarder not started")
		return
	}
	w.log.Info().Str("stream", w.stream).Str("group", w.group).Msg("Payout forwarder started")

	var lastReclaim time.Time
	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Payout forwarder stopped")
			return
		default:
		}

		if time.Since(lastReclaim) >= w.retryAfter {
			lastReclaim = time.Now()
			if _, err := w.Reclaim(ctx); err != nil && ctx.Err() == nil {
				w.log.Warn().Err(err).Msg("Failed to reclaim pending payout entries")
			}
		}

		if _, err := w.Poll(ctx, 5*time.Second); err != nil {
			if ctx.Err() != nil {
				continue
			}
			w.log.Warn().Err(err).Msg("Failed to read payout stream")
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
		}
	}
}

// Poll reads one batch of new entries and forwards it. A negative block
// returns at once when the stream is empty. It reports how many entries were
// acknowledged.
func (w *PayoutForwarder) Poll(ctx context.Context, block time.Duration) (int, error) {
	streams, err := w.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    w.group,
		Consumer: w.consumer,
		Streams:  []string{w.stream, ">"},
		Count:    10,
		Block:    block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	acked := 0
	for _, stream := range streams {
		acked += w.deliver(ctx, stream.Messages)
	}
	return acked, nil
}

// Reclaim takes over entries that have been pending for at least the retry
// interval, from this or any other consumer, and tries to deliver them again.
func (w *PayoutForwarder) Reclaim(ctx context.Context) (int, error) {
	acked := 0
	start := "0-0"
	for {
		msgs, next, err := w.rdb.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   w.stream,
			Group:    w.group,
			Consumer: w.consumer,
			MinIdle:  w.retryAfter,
			Start:    start,
			Count:    10,
		}).Result()
		if err != nil {
			return acked, err
		}
		acked += w.deliver(ctx, msgs)
		if next == "" || next == "0-0" {
			return acked, nil
		}
		start = next
	}
}

func (w *PayoutForwarder) deliver(ctx context.Context, msgs []redis.XMessage) int {
	acked := 0
	for _, msg := range msgs {
		if err := w.process(ctx, msg); err != nil {
			w.log.Warn().Err(err).Str("entry", msg.ID).Msg("Payout entry left pending for retry")
			continue
		}
		if err := w.rdb.XAck(ctx, w.stream, w.group, msg.ID).Err(); err != nil {
			w.log.Warn().Err(err).Str("entry", msg.ID).Msg("Failed to ack payout entry")
			continue
		}
		acked++
	}
	return acked
}

// process returns an error only when a retry can succeed. Foreign and
// malformed entries are dropped.
func (w *PayoutForwarder) process(ctx context.Context, msg redis.XMessage) error {
	if t, _ := msg.Values["type"].(string); t != eventPayoutRequested {
		return nil
	}
	raw, _ := msg.Values["payout"].(string)

	var payout accountmodels.Payout
	if err := json.Unmarshal([]byte(raw), &payout); err != nil {
		w.log.Warn().Err(err).Str("entry", msg.ID).Msg("Malformed payout entry")
		return nil
	}

	if w.adminID == 0 {
		w.log.Info().Str("payout_id", payout.ID).Int64("account_id", payout.AccountID).Msg("Payout requested, no operator chat configured")
		return nil
	}
	if _, err := w.sender.Send(ctx, w.adminID, models.Message{Text: payoutNotice(&payout)}); err != nil {
		return fmt.Errorf("forward payout %s: %w", payout.ID, err)
	}
	w.log.Info().Str("payout_id", payout.ID).Int64("account_id", payout.AccountID).Msg("Payout request forwarded")
	return nil
}

func payoutNotice(p *accountmodels.Payout) string {
	return fmt.Sprintf(
		"💸 Withdrawal request\nUser: %d\nAmount: ₹%d\nPayout address: %s\nRequested: %s\nID: %s",
		p.AccountID, p.Amount, p.PayoutAddress, p.RequestedAt.UTC().Format(time.RFC3339), p.ID,
	)
}
