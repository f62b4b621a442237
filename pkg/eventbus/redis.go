package eventbus

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/nao1215/gatekeep/pkg/event"
)

// Redis はRedis Pub/Subを使ったBus実装。
// 発行用と購読用に別々のクライアントを持ち、長時間の購読が発行をブロックしない。
type Redis struct {
	// pub は発行専用のクライアント。
	pub *redis.Client
	// sub は購読専用のクライアント。
	sub *redis.Client
	// log はハンドラの異常を記録するロガー。
	log *zap.Logger
}

// NewRedis はoptsから発行用・購読用の2つのクライアントを生成する。
// 接続は遅延確立されるため、到達確認が必要な場合はPingを呼ぶ。
func NewRedis(opts *redis.Options, log *zap.Logger) *Redis {
	pubOpts := *opts
	subOpts := *opts
	return &Redis{
		pub: redis.NewClient(&pubOpts),
		sub: redis.NewClient(&subOpts),
		log: log,
	}
}

// Ping は発行用接続の到達確認を行う。
func (r *Redis) Ping(ctx context.Context) error {
	if err := r.pub.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("Redisへの接続に失敗: %w", err)
	}
	return nil
}

// Publish はpayloadをchannelに発行する。
func (r *Redis) Publish(ctx context.Context, channel event.Channel, payload []byte) error {
	if err := r.pub.Publish(ctx, channel.String(), payload).Err(); err != nil {
		if errors.Is(err, redis.ErrClosed) {
			return ErrClosed
		}
		return fmt.Errorf("イベントの発行に失敗: channel=%s: %w", channel, err)
	}
	return nil
}

// Subscribe はchannelを購読し、受信ごとにhandlerを呼ぶゴルーチンを開始する。
// 購読の確立（SUBSCRIBEの応答受信）まで待ってから戻る。
func (r *Redis) Subscribe(ctx context.Context, channel event.Channel, handler Handler) (Subscription, error) {
	ps := r.sub.Subscribe(ctx, channel.String())
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		if errors.Is(err, redis.ErrClosed) {
			return nil, ErrClosed
		}
		return nil, fmt.Errorf("購読の開始に失敗: channel=%s: %w", channel, err)
	}

	s := &redisSubscription{ps: ps, done: make(chan struct{})}
	go func() {
		defer close(s.done)
		for msg := range ps.Channel() {
			dispatch(r.log, handler, event.Message{
				Channel: event.Channel(msg.Channel),
				Payload: []byte(msg.Payload),
			})
		}
	}()
	return s, nil
}

// Close は発行用・購読用の両方の接続を閉じる。
func (r *Redis) Close() error {
	return errors.Join(r.pub.Close(), r.sub.Close())
}

// redisSubscription はRedisの購読。
type redisSubscription struct {
	ps   *redis.PubSub
	done chan struct{}
}

// Close は購読を終了し、配信ゴルーチンの終了を待つ。
func (s *redisSubscription) Close() error {
	err := s.ps.Close()
	<-s.done
	return err
}

// dispatch はhandlerを呼び出し、パニックしても購読を継続する。
func dispatch(log *zap.Logger, handler Handler, m event.Message) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error("イベントハンドラでパニックが発生",
				zap.String("channel", m.Channel.String()),
				zap.Any("panic", rec),
			)
		}
	}()
	handler(context.Background(), m)
}
