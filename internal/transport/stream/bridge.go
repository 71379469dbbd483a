// Package stream republishes profile snapshots on an in-memory watermill topic so
// remote UI shells can follow them without sitting in the synchronous fan-out.
package stream

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/bytedance/sonic"

	"mindtracking-client/internal/domain/profile"
	"mindtracking-client/internal/platform/errors"
	"mindtracking-client/internal/platform/logging"
)

// Topic carries JSON encoded profile.Snapshot payloads.
const Topic = "profile.snapshot"

const (
	metaPublishedAt = "published_at"
	metaSequence    = "seq"
)

// Source is where snapshots come from. profile.Service implements it.
type Source interface {
	Subscribe(l profile.Listener) func()
}

// Bridge holds one registry listener and any number of topic subscribers.
type Bridge struct {
	pubsub      *gochannel.GoChannel
	unsubscribe func()
	logger      *slog.Logger
	seq         atomic.Uint64
	closeOnce   sync.Once
}

func NewBridge(src Source, logger *slog.Logger) *Bridge {
	b := &Bridge{
		pubsub: gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 16}, watermill.NewStdLogger(false, false)),
		logger: logging.OrDefault(logger).With(slog.String("component", "stream")),
	}
	b.unsubscribe = src.Subscribe(b.publish)
	return b
}

func (b *Bridge) publish(s profile.Snapshot) {
	payload, err := sonic.Marshal(s)
	if err != nil {
		b.logger.Error("encode snapshot", slog.Any("error", err))
		return
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set(metaSequence, strconv.FormatUint(b.seq.Add(1), 10))
	msg.Metadata.Set(metaPublishedAt, time.Now().UTC().Format(time.RFC3339Nano))
	if err := b.pubsub.Publish(Topic, msg); err != nil {
		b.logger.Warn("publish snapshot", slog.Any("error", err))
	}
}

// Subscribe returns a channel of snapshots published after the call. GoChannel may
// deliver concurrent publishes out of order; anything older than the last delivered
// snapshot is dropped. The channel is closed when ctx is done or the bridge is closed.
func (b *Bridge) Subscribe(ctx context.Context) (<-chan profile.Snapshot, error) {
	messages, err := b.pubsub.Subscribe(ctx, Topic)
	if err != nil {
		return nil, errors.Wrap(errors.KindTransport, "stream.subscribe", "subscribe to snapshots", err)
	}

	out := make(chan profile.Snapshot, 4)
	go func() {
		defer close(out)
		var last uint64
		for msg := range messages {
			seq, _ := strconv.ParseUint(msg.Metadata.Get(metaSequence), 10, 64)
			var snap profile.Snapshot
			err := sonic.Unmarshal(msg.Payload, &snap)
			msg.Ack()
			if seq != 0 && seq <= last {
				continue
			}
			last = seq
			if err != nil {
				b.logger.Warn("decode snapshot", slog.String("msg_id", msg.UUID), slog.Any("error", err))
				continue
			}
			select {
			case out <- snap:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Close detaches from the registry and ends every subscription.
func (b *Bridge) Close() error {
	var err error
	b.closeOnce.Do(func() {
		b.unsubscribe()
		err = b.pubsub.Close()
	})
	return err
}
