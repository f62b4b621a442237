package logger

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

// TestNew はロガー生成を検証する。
func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("json形式でロガーを生成できること", func(t *testing.T) {
		t.Parallel()

		l, err := New("gateway", "info", "json")
		if err != nil {
			t.Fatalf("New()でエラーが発生: %v", err)
		}
		if l == nil {
			t.Fatal("New()がnilを返した")
		}
	})

	t.Run("console形式でロガーを生成できること", func(t *testing.T) {
		t.Parallel()

		l, err := New("auth", "DEBUG", "console")
		if err != nil {
			t.Fatalf("New()でエラーが発生: %v", err)
		}
		if !l.Core().Enabled(zapcore.DebugLevel) {
			t.Error("debugレベルが有効になっていない")
		}
	})

	t.Run("不正なレベルはエラーになること", func(t *testing.T) {
		t.Parallel()

		if _, err := New("user", "verbose", "json"); err == nil {
			t.Fatal("New()がエラーを返すべきだが、nilが返った")
		}
	})
}
