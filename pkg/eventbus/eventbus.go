// Package eventbus はドメインイベントのPublish/Subscribeを抽象化する。
//
// 配信はベストエフォートで、永続化・再送・確認応答は行わない。
// 購読開始前に発行されたイベントは受け取れず、チャネルをまたいだ順序も保証しない。
package eventbus

import (
	"context"
	"errors"

	"github.com/nao1215/gatekeep/pkg/event"
)

// ErrClosed はクローズ済みのバスを使用したことを表す。
var ErrClosed = errors.New("event bus is closed")

// Handler はチャネル上で観測したメッセージごとに1回呼び出される。
type Handler func(ctx context.Context, m event.Message)

// Publisher はチャネルへメッセージを発行する。
type Publisher interface {
	// Publish はpayloadをchannelに発行する。購読者への到達は待たない。
	Publish(ctx context.Context, channel event.Channel, payload []byte) error
}

// Subscriber はチャネルを購読する。
type Subscriber interface {
	// Subscribe はchannelの購読を開始する。戻り値のSubscriptionをCloseするまでhandlerが呼ばれる。
	Subscribe(ctx context.Context, channel event.Channel, handler Handler) (Subscription, error)
}

// Subscription は有効な購読。
type Subscription interface {
	// Close は購読を終了する。
	Close() error
}

// Bus はPublisherとSubscriberを兼ね、接続を解放するCloseを持つ。
type Bus interface {
	Publisher
	Subscriber
	Close() error
}
