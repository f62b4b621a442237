package eventbus

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/nao1215/gatekeep/pkg/event"
)

// memoryBufferSize は購読ごとの未配信メッセージの上限。超過分は破棄する。
const memoryBufferSize = 64

// Memory はプロセス内で完結するBus実装。単一プロセス構成やテストで使用する。
type Memory struct {
	mu     sync.RWMutex
	subs   map[event.Channel]map[*memorySubscription]struct{}
	closed bool
	log    *zap.Logger
}

// NewMemory は新しいプロセス内バスを生成する。
func NewMemory(log *zap.Logger) *Memory {
	return &Memory{
		subs: make(map[event.Channel]map[*memorySubscription]struct{}),
		log:  log,
	}
}

// Publish は現在の購読者それぞれにpayloadを配送キューへ積む。
// キューが満杯の購読者には配送せず破棄する（at-most-once）。
func (b *Memory) Publish(_ context.Context, channel event.Channel, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrClosed
	}

	msg := event.Message{Channel: channel, Payload: append([]byte(nil), payload...)}
	for s := range b.subs[channel] {
		select {
		case s.queue <- msg:
		default:
			b.log.Warn("購読者のキューが満杯のためイベントを破棄",
				zap.String("channel", channel.String()),
			)
		}
	}
	return nil
}

// Subscribe はchannelの購読を開始する。
func (b *Memory) Subscribe(_ context.Context, channel event.Channel, handler Handler) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}

	s := &memorySubscription{
		bus:     b,
		channel: channel,
		queue:   make(chan event.Message, memoryBufferSize),
		done:    make(chan struct{}),
	}
	if b.subs[channel] == nil {
		b.subs[channel] = make(map[*memorySubscription]struct{})
	}
	b.subs[channel][s] = struct{}{}

	go func() {
		defer close(s.done)
		for m := range s.queue {
			dispatch(b.log, handler, m)
		}
	}()
	return s, nil
}

// Close はすべての購読を終了する。
func (b *Memory) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	var all []*memorySubscription
	for _, set := range b.subs {
		for s := range set {
			all = append(all, s)
		}
	}
	b.subs = map[event.Channel]map[*memorySubscription]struct{}{}
	b.mu.Unlock()

	for _, s := range all {
		s.stop()
	}
	return nil
}

// memorySubscription はプロセス内バスの購読。
type memorySubscription struct {
	bus     *Memory
	channel event.Channel
	queue   chan event.Message
	done    chan struct{}
	once    sync.Once
}

// Close は購読を解除し、積まれていたメッセージの配信完了を待つ。
func (s *memorySubscription) Close() error {
	s.bus.mu.Lock()
	delete(s.bus.subs[s.channel], s)
	s.bus.mu.Unlock()

	s.stop()
	return nil
}

func (s *memorySubscription) stop() {
	s.once.Do(func() { close(s.queue) })
	<-s.done
}
