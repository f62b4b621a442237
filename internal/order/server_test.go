package order

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nao1215/gatekeep/pkg/apperror"
	"github.com/nao1215/gatekeep/pkg/config"
	"github.com/nao1215/gatekeep/pkg/database"
	"github.com/nao1215/gatekeep/pkg/event"
	"github.com/nao1215/gatekeep/pkg/eventbus"
)

// eventWindow はベストエフォート配信を待つ上限時間。
const eventWindow = 5 * time.Second

// setupTestServer はインメモリSQLiteとプロセス内バスでサーバーを生成する。
func setupTestServer(t *testing.T) (*Server, eventbus.Bus) {
	t.Helper()

	ctx := context.Background()
	db, err := database.Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	bus := eventbus.NewMemory(zap.NewNop())
	t.Cleanup(func() { _ = bus.Close() })

	s, err := NewServer(ctx, config.Order{Port: "0"}, Deps{DB: db, Bus: bus, Log: zap.NewNop()})
	require.NoError(t, err)
	return s, bus
}

func do(s *Server, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		_ = json.NewEncoder(&buf).Encode(b)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestCreateOrder(t *testing.T) {
	t.Parallel()

	t.Run("作成した注文が201で返りorder:createdのペイロードと一致すること", func(t *testing.T) {
		t.Parallel()

		s, bus := setupTestServer(t)
		got := make(chan event.Message, 1)
		sub, err := bus.Subscribe(context.Background(), event.ChannelOrderCreated, func(_ context.Context, m event.Message) {
			got <- m
		})
		require.NoError(t, err)
		defer sub.Close()

		item := gofakeit.ProductName()
		w := do(s, http.MethodPost, "/orders", map[string]any{"userId": 1, "item": item, "quantity": 3})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

		var o Order
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &o))
		assert.Equal(t, Order{ID: 1, UserID: 1, Item: item, Quantity: 3}, o)

		select {
		case m := <-got:
			assert.JSONEq(t, w.Body.String(), string(m.Payload))
		case <-time.After(eventWindow):
			t.Fatal("order:createdを受信できなかった")
		}
	})

	t.Run("外部表現のフィールド名はuserIdであること", func(t *testing.T) {
		t.Parallel()

		s, _ := setupTestServer(t)
		w := do(s, http.MethodPost, "/orders", `{"userId":5,"item":"Pen","quantity":2}`)
		require.Equal(t, http.StatusCreated, w.Code)
		assert.JSONEq(t, `{"id":1,"userId":5,"item":"Pen","quantity":2}`, w.Body.String())
	})

	t.Run("不正な入力は違反フィールドをすべて列挙した400になること", func(t *testing.T) {
		t.Parallel()

		s, _ := setupTestServer(t)
		tests := []struct {
			name       string
			body       string
			wantFields []string
		}{
			{name: "すべて欠落", body: `{}`, wantFields: []string{"userId", "item", "quantity"}},
			{name: "数量0", body: `{"userId":1,"item":"Book","quantity":0}`, wantFields: []string{"quantity"}},
			{name: "数量が負", body: `{"userId":1,"item":"Book","quantity":-1}`, wantFields: []string{"quantity"}},
			{name: "userIdが負", body: `{"userId":-3,"item":"Book","quantity":1}`, wantFields: []string{"userId"}},
			{name: "item空文字", body: `{"userId":1,"item":"","quantity":1}`, wantFields: []string{"item"}},
			{name: "数量が小数", body: `{"userId":1,"item":"Book","quantity":1.5}`, wantFields: []string{"quantity"}},
			{name: "複数フィールドの型不正", body: `{"userId":1,"item":5,"quantity":"x"}`, wantFields: []string{"item", "quantity"}},
			{name: "型不正と欠落の混在", body: `{"userId":"1","quantity":0}`, wantFields: []string{"userId", "item", "quantity"}},
		}
		for _, tt := range tests {
			w := do(s, http.MethodPost, "/orders", tt.body)
			require.Equal(t, http.StatusBadRequest, w.Code, tt.name)

			var body struct {
				Error   string                `json:"error"`
				Details []apperror.FieldError `json:"details"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), tt.name)
			var fields []string
			for _, d := range body.Details {
				fields = append(fields, d.Field)
			}
			assert.Equal(t, tt.wantFields, fields, tt.name)
		}
	})
}

func TestListByUser(t *testing.T) {
	t.Parallel()

	s, _ := setupTestServer(t)
	for _, o := range []map[string]any{
		{"userId": 1, "item": "Book", "quantity": 1},
		{"userId": 2, "item": "Pen", "quantity": 5},
		{"userId": 1, "item": "Lamp", "quantity": 2},
	} {
		require.Equal(t, http.StatusCreated, do(s, http.MethodPost, "/orders", o).Code)
	}

	t.Run("指定ユーザーの注文だけがID順に返ること", func(t *testing.T) {
		t.Parallel()

		w := do(s, http.MethodGet, "/orders/user/1", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var orders []Order
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &orders))
		assert.Equal(t, []Order{
			{ID: 1, UserID: 1, Item: "Book", Quantity: 1},
			{ID: 3, UserID: 1, Item: "Lamp", Quantity: 2},
		}, orders)
	})

	t.Run("注文がないユーザーは404ではなく空配列になること", func(t *testing.T) {
		t.Parallel()

		w := do(s, http.MethodGet, "/orders/user/42", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "[]", w.Body.String())
	})

	t.Run("数値でないuserIdは400になること", func(t *testing.T) {
		t.Parallel()

		w := do(s, http.MethodGet, "/orders/user/abc", nil)
		require.Equal(t, http.StatusBadRequest, w.Code)
		var body map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "userId must be a number", body["error"])
	})
}

// flakyBus は最初のfailures回だけ購読に失敗するバス。
type flakyBus struct {
	*eventbus.Memory
	failures int32
	calls    atomic.Int32
}

func (b *flakyBus) Subscribe(ctx context.Context, ch event.Channel, h eventbus.Handler) (eventbus.Subscription, error) {
	if b.calls.Add(1) <= b.failures {
		return nil, errors.New("dial tcp: connection refused")
	}
	return b.Memory.Subscribe(ctx, ch, h)
}

func TestRunRetriesEventLog(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db, err := database.Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	bus := &flakyBus{Memory: eventbus.NewMemory(zap.NewNop()), failures: 2}
	t.Cleanup(func() { _ = bus.Close() })

	s, err := NewServer(ctx, config.Order{Port: "0", Domain: config.Domain{HTTP: config.HTTP{ShutdownTimeout: 5 * time.Second}}},
		Deps{DB: db, Bus: bus, Log: zap.NewNop()})
	require.NoError(t, err)
	s.resubscribeBase = time.Millisecond

	runCtx, cancel := context.WithCancel(ctx)
	errc := make(chan error, 1)
	go func() { errc <- s.Run(runCtx) }()

	observed := []byte(`events_observed_total{channel="order:created",service="order"}`)
	assert.Eventually(t, func() bool {
		do(s, http.MethodPost, "/orders", map[string]any{"userId": 1, "item": gofakeit.ProductName(), "quantity": 1})
		m := do(s, http.MethodGet, "/metrics", nil)
		return bytes.Contains(m.Body.Bytes(), observed)
	}, eventWindow, 20*time.Millisecond)

	cancel()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(eventWindow):
		t.Fatal("Runがctxの終了後に戻らなかった")
	}
}
