package gateway_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nao1215/gatekeep/internal/auth"
	"github.com/nao1215/gatekeep/internal/gateway"
	"github.com/nao1215/gatekeep/internal/order"
	"github.com/nao1215/gatekeep/internal/user"
	"github.com/nao1215/gatekeep/pkg/config"
	"github.com/nao1215/gatekeep/pkg/database"
	"github.com/nao1215/gatekeep/pkg/event"
	"github.com/nao1215/gatekeep/pkg/eventbus"
)

// system は全サービスをhttptest上に起動した構成。
type system struct {
	gateway *httptest.Server
	bus     eventbus.Bus
}

// openDB はサービスごとに独立したインメモリSQLiteを開く。
func openDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// startSystem は認証・ユーザー・注文・Gatewayの各サービスとRedisバスを起動する。
func startSystem(t *testing.T) *system {
	t.Helper()

	ctx := context.Background()
	log := zap.NewNop()

	mr := miniredis.RunT(t)
	bus := eventbus.NewRedis(&redis.Options{Addr: mr.Addr()}, log)
	require.NoError(t, bus.Ping(ctx))
	t.Cleanup(func() { _ = bus.Close() })

	authSrv, err := auth.NewServer(config.Auth{
		Port:      "0",
		JWTSecret: "e2e-secret",
		TokenTTL:  time.Hour,
		DemoUser:  config.DemoUser{ID: 1, Username: "admin", Password: "password", Role: "user"},
	}, log)
	require.NoError(t, err)
	authHTTP := httptest.NewServer(authSrv.Handler())
	t.Cleanup(authHTTP.Close)

	userSrv, err := user.NewServer(ctx, config.User{Port: "0"}, user.Deps{DB: openDB(t), Bus: bus, Log: log})
	require.NoError(t, err)
	userHTTP := httptest.NewServer(userSrv.Handler())
	t.Cleanup(userHTTP.Close)

	orderSrv, err := order.NewServer(ctx, config.Order{Port: "0"}, order.Deps{DB: openDB(t), Bus: bus, Log: log})
	require.NoError(t, err)
	orderHTTP := httptest.NewServer(orderSrv.Handler())
	t.Cleanup(orderHTTP.Close)

	gw := gateway.NewServer(config.Gateway{
		Port:            "0",
		AuthServiceURL:  authHTTP.URL,
		UserServiceURL:  userHTTP.URL,
		OrderServiceURL: orderHTTP.URL,
		Upstream:        config.Upstream{Timeout: 5 * time.Second, Retries: 1, RetryBase: 10 * time.Millisecond},
	}, log)
	gwHTTP := httptest.NewServer(gw.Handler())
	t.Cleanup(gwHTTP.Close)

	return &system{gateway: gwHTTP, bus: bus}
}

// call はGatewayにリクエストを送り、ステータスとデコード済みボディを返す。
func (s *system) call(t *testing.T, method, path, tok string, body any, out any) int {
	t.Helper()

	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		payload = b
	}
	req, err := http.NewRequestWithContext(context.Background(), method, s.gateway.URL+path, bytes.NewReader(payload))
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestEndToEnd(t *testing.T) {
	t.Parallel()

	sys := startSystem(t)

	// 注文作成より前に購読しておく
	orderEvents := make(chan event.Message, 4)
	sub, err := sys.bus.Subscribe(context.Background(), event.ChannelOrderCreated, func(_ context.Context, m event.Message) {
		orderEvents <- m
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Close() })

	var login struct {
		Token string `json:"token"`
	}
	status := sys.call(t, http.MethodPost, "/login", "", map[string]string{"username": "admin", "password": "password"}, &login)
	require.Equal(t, http.StatusOK, status)
	require.NotEmpty(t, login.Token)

	var created user.User
	status = sys.call(t, http.MethodPost, "/users", login.Token, map[string]string{"name": "Alice", "email": "alice@example.com"}, &created)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "Alice", created.Name)

	var fetched user.User
	status = sys.call(t, http.MethodGet, "/users/"+strconv.FormatInt(created.ID, 10), login.Token, nil, &fetched)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, created, fetched)

	var placed order.Order
	status = sys.call(t, http.MethodPost, "/orders", login.Token, map[string]any{"item": "Book", "quantity": 1, "userId": 999}, &placed)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, int64(1), placed.UserID)
	assert.Equal(t, "Book", placed.Item)
	assert.Equal(t, int64(1), placed.Quantity)

	var mine []order.Order
	status = sys.call(t, http.MethodGet, "/orders/user", login.Token, nil, &mine)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, mine, 1)
	assert.Equal(t, placed, mine[0])

	select {
	case m := <-orderEvents:
		got, err := event.Decode[order.Order](m)
		require.NoError(t, err)
		assert.Equal(t, placed, *got)
	case <-time.After(10 * time.Second):
		t.Fatal("order:createdを受信できなかった")
	}
}

func TestEndToEndRejectsBadTokens(t *testing.T) {
	t.Parallel()

	sys := startSystem(t)

	var body map[string]any
	status := sys.call(t, http.MethodGet, "/orders/user", "", nil, &body)
	assert.Equal(t, http.StatusUnauthorized, status)

	status = sys.call(t, http.MethodGet, "/orders/user", "not-a-jwt", nil, &body)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "Unauthorized", body["error"])

	status = sys.call(t, http.MethodPost, "/login", "", map[string]string{"username": "admin", "password": "nope"}, &body)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "Invalid credentials", body["error"])
}

func TestEndToEndRelaysDomainErrors(t *testing.T) {
	t.Parallel()

	sys := startSystem(t)

	var login struct {
		Token string `json:"token"`
	}
	require.Equal(t, http.StatusOK, sys.call(t, http.MethodPost, "/login", "", map[string]string{"username": "admin", "password": "password"}, &login))

	var body map[string]any
	status := sys.call(t, http.MethodGet, "/users/999", login.Token, nil, &body)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "User 999 not found", body["error"])

	body = nil
	status = sys.call(t, http.MethodPost, "/orders", login.Token, map[string]any{"item": "Book"}, &body)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Invalid request payload", body["error"])

	var empty []order.Order
	status = sys.call(t, http.MethodGet, "/orders/user", login.Token, nil, &empty)
	assert.Equal(t, http.StatusOK, status)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}


func TestEndToEndOrderOwnerCannotBeSpoofed(t *testing.T) {
	t.Parallel()

	sys := startSystem(t)

	var login struct {
		Token string `json:"token"`
	}
	require.Equal(t, http.StatusOK, sys.call(t, http.MethodPost, "/login", "", map[string]string{"username": "admin", "password": "password"}, &login))

	for _, key := range []string{"userId", "userid", "USERID", "UserId"} {
		var placed order.Order
		status := sys.call(t, http.MethodPost, "/orders", login.Token, map[string]any{"item": "Book", "quantity": 1, key: 999}, &placed)
		require.Equal(t, http.StatusCreated, status, key)
		assert.Equal(t, int64(1), placed.UserID, key)
	}

	var mine []order.Order
	require.Equal(t, http.StatusOK, sys.call(t, http.MethodGet, "/orders/user", login.Token, nil, &mine))
	assert.Len(t, mine, 4)
}
