package authclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nao1215/gatekeep/pkg/apperror"
	"github.com/nao1215/gatekeep/pkg/httpclient"
	"github.com/nao1215/gatekeep/pkg/token"
)

// TestVerify は認証サービスの応答ごとの結果を検証する。
func TestVerify(t *testing.T) {
	t.Parallel()

	t.Run("200なら識別情報を返しヘッダーをそのまま転送すること", func(t *testing.T) {
		t.Parallel()

		var gotPath, gotAuth string
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			gotAuth = r.Header.Get("Authorization")
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"id":1,"username":"admin","role":"user","exp":1,"iat":0}`))
		}))
		defer ts.Close()

		got, err := New(httpclient.New(ts.URL)).Verify(context.Background(), "Bearer abc.def.ghi")
		if err != nil {
			t.Fatalf("Verify() error = %v", err)
		}
		want := token.Identity{ID: 1, Username: "admin", Role: "user"}
		if got != want {
			t.Errorf("Verify() = %+v, want %+v", got, want)
		}
		if gotPath != "/validate" {
			t.Errorf("path = %q, want /validate", gotPath)
		}
		if gotAuth != "Bearer abc.def.ghi" {
			t.Errorf("Authorization = %q", gotAuth)
		}
	})

	t.Run("401ならAuthenticationエラーになること", func(t *testing.T) {
		t.Parallel()

		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"Invalid or expired token"}`))
		}))
		defer ts.Close()

		_, err := New(httpclient.New(ts.URL)).Verify(context.Background(), "Bearer bad")
		if !apperror.Is(err, apperror.KindAuthentication) {
			t.Errorf("error = %v, want authentication", err)
		}
	})

	t.Run("500ならInternalエラーになること", func(t *testing.T) {
		t.Parallel()

		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer ts.Close()

		_, err := New(httpclient.New(ts.URL)).Verify(context.Background(), "Bearer x")
		if !apperror.Is(err, apperror.KindInternal) {
			t.Errorf("error = %v, want internal", err)
		}
	})

	t.Run("不正な応答ボディならInternalエラーになること", func(t *testing.T) {
		t.Parallel()

		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`not json`))
		}))
		defer ts.Close()

		_, err := New(httpclient.New(ts.URL)).Verify(context.Background(), "Bearer x")
		if !apperror.Is(err, apperror.KindInternal) {
			t.Errorf("error = %v, want internal", err)
		}
	})

	t.Run("到達不能ならInternalエラーになること", func(t *testing.T) {
		t.Parallel()

		_, err := New(httpclient.New("http://127.0.0.1:1")).Verify(context.Background(), "Bearer x")
		if !apperror.Is(err, apperror.KindInternal) {
			t.Errorf("error = %v, want internal", err)
		}
	})
}
