package eventbus

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/nao1215/gatekeep/pkg/config"
)

func TestOpen(t *testing.T) {
	t.Parallel()

	t.Run("memoryを指定するとプロセス内バスになること", func(t *testing.T) {
		t.Parallel()

		bus := Open(context.Background(), config.Redis{Bus: BusMemory}, zap.NewNop())
		t.Cleanup(func() { _ = bus.Close() })
		assert.IsType(t, &Memory{}, bus)
	})

	t.Run("既定ではRedisバスになること", func(t *testing.T) {
		t.Parallel()

		mr := miniredis.RunT(t)
		bus := Open(context.Background(), config.Redis{Bus: "redis", Addr: mr.Addr()}, zap.NewNop())
		t.Cleanup(func() { _ = bus.Close() })
		require.IsType(t, &Redis{}, bus)
		assert.NoError(t, bus.(*Redis).Ping(context.Background()))
	})

	t.Run("Redisに到達できなくても警告だけで生成されること", func(t *testing.T) {
		t.Parallel()

		mr := miniredis.RunT(t)
		addr := mr.Addr()
		mr.Close()

		core, logs := observer.New(zap.WarnLevel)
		bus := Open(context.Background(), config.Redis{Bus: "redis", Addr: addr}, zap.New(core))
		t.Cleanup(func() { _ = bus.Close() })
		assert.NotNil(t, bus)
		assert.Equal(t, 1, logs.Len())
	})
}
