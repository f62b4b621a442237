package eventbus

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/nao1215/gatekeep/pkg/event"
)

// DefaultPublishTimeout はEmitterが1回の発行を待つ上限。
const DefaultPublishTimeout = 2 * time.Second

// PublishObserver は発行の結果を受け取る。メトリクスの記録に使う。
type PublishObserver func(channel event.Channel, err error)

// Emitter は作成済みエンティティをドメインイベントとして発行する。
// 発行はリクエストの成否に含めず、失敗はログに記録するだけで呼び出し元には返さない。
type Emitter struct {
	pub     Publisher
	log     *zap.Logger
	observe PublishObserver
	timeout time.Duration
}

// NewEmitter は新しいEmitterを生成する。observeはnilでもよい。
func NewEmitter(pub Publisher, log *zap.Logger, observe PublishObserver) *Emitter {
	if observe == nil {
		observe = func(event.Channel, error) {}
	}
	return &Emitter{pub: pub, log: log, observe: observe, timeout: DefaultPublishTimeout}
}

// Emit はentityをシリアライズしてchannelに発行する。
// クライアントの切断で発行が中断されないよう、ctxのキャンセルは引き継がずタイムアウトだけを設ける。
// 永続化と発行はトランザクションで結ばれていないため、保存済みで未発行の状態があり得る。
func (e *Emitter) Emit(ctx context.Context, channel event.Channel, entity any) {
	msg, err := event.New(channel, entity)
	if err != nil {
		e.observe(channel, err)
		e.log.Error("イベントの生成に失敗", zap.String("channel", channel.String()), zap.Error(err))
		return
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.timeout)
	defer cancel()

	err = e.pub.Publish(pubCtx, channel, msg.Payload)
	e.observe(channel, err)
	if err != nil {
		e.log.Warn("イベントの発行に失敗（リクエストは成功扱い）",
			zap.String("channel", channel.String()),
			zap.Error(err),
		)
	}
}

// LogHandler は観測したイベントをinfoレベルで記録するHandlerを返す。
// onEventがnilでなければイベントごとに呼び出す。
func LogHandler(log *zap.Logger, onEvent func(event.Channel)) Handler {
	return func(_ context.Context, m event.Message) {
		if onEvent != nil {
			onEvent(m.Channel)
		}
		log.Info("イベントを受信",
			zap.String("channel", m.Channel.String()),
			zap.ByteString("payload", m.Payload),
		)
	}
}
