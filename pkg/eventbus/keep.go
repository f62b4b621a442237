package eventbus

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/nao1215/gatekeep/pkg/event"
)

// DefaultResubscribeBase は購読の再試行の初期待ち時間。
const DefaultResubscribeBase = 500 * time.Millisecond

// maxResubscribeWait は購読の再試行間隔の上限。
const maxResubscribeWait = 30 * time.Second

// SubscribeRetry はSubscribeが成功するまで指数バックオフで再試行する。
// ctxが終了するかバスがクローズされると、そのエラーを返す。
func SubscribeRetry(ctx context.Context, sub Subscriber, channel event.Channel, handler Handler, base time.Duration, log *zap.Logger) (Subscription, error) {
	var s Subscription
	attempt := 0
	backoff := retry.WithCappedDuration(maxResubscribeWait, retry.NewExponential(base))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		got, err := sub.Subscribe(ctx, channel, handler)
		if err != nil {
			if errors.Is(err, ErrClosed) || ctx.Err() != nil {
				return err
			}
			log.Warn("購読に失敗したため再試行します",
				zap.String("channel", channel.String()),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			return retry.RetryableError(err)
		}
		s = got
		return nil
	})
	if err != nil {
		return nil, err
	}
	if attempt > 1 {
		log.Info("購読を開始しました", zap.String("channel", channel.String()), zap.Int("attempt", attempt))
	}
	return s, nil
}

// Keep はchannelの購読を確立し、ctxが終了するまで維持する。
// 確立できるまで再試行し、ctxの終了時に購読を閉じて戻る。
func Keep(ctx context.Context, sub Subscriber, channel event.Channel, handler Handler, base time.Duration, log *zap.Logger) {
	s, err := SubscribeRetry(ctx, sub, channel, handler, base, log)
	if err != nil {
		if ctx.Err() == nil {
			log.Warn("購読を断念しました", zap.String("channel", channel.String()), zap.Error(err))
		}
		return
	}
	<-ctx.Done()
	_ = s.Close()
}
