package eventbus

import (
	"context"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/nao1215/gatekeep/pkg/config"
)

// BusMemory はプロセス内バスを選択する設定値。
const BusMemory = "memory"

// Open は設定に従ってバスを生成する。
// Redisに到達できなくても起動は続け、接続は遅延して再確立される。
func Open(ctx context.Context, cfg config.Redis, log *zap.Logger) Bus {
	if cfg.Bus == BusMemory {
		log.Info("プロセス内イベントバスを使用します")
		return NewMemory(log)
	}

	bus := NewRedis(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}, log)
	if err := bus.Ping(ctx); err != nil {
		log.Warn("Redisに接続できません。発行は失敗しても処理を継続します",
			zap.String("addr", cfg.Addr),
			zap.Error(err),
		)
	}
	return bus
}
