package server

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/soundshare/internal/shared"
)

func TestBasicRouter(t *testing.T) {
	t.Run("Method patterns", func(t *testing.T) {
		router := NewBasicRouter()
		router.Handle(http.MethodGet, "/ping", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, "pong")
		}))

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
		if rec.Code != http.StatusOK || rec.Body.String() != "pong" {
			t.Errorf("GET /ping = %d %q", rec.Code, rec.Body.String())
		}

		rec = httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/ping", nil))
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("POST /ping = %d, want 405", rec.Code)
		}
	})

	t.Run("Middleware order", func(t *testing.T) {
		var order []string
		mw := func(name string) Middleware {
			return func(next http.Handler) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					order = append(order, name)
					next.ServeHTTP(w, r)
				})
			}
		}

		router := NewBasicRouter()
		router.Use(mw("first"), mw("second"))
		router.Handle(http.MethodGet, "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			order = append(order, "handler")
		}))

		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

		want := []string{"first", "second", "handler"}
		if len(order) != len(want) {
			t.Fatalf("got %v, want %v", order, want)
		}
		for i := range want {
			if order[i] != want[i] {
				t.Errorf("got %v, want %v", order, want)
				break
			}
		}
	})

	t.Run("Logging middleware records status", func(t *testing.T) {
		var buf bytes.Buffer
		logger := shared.NewLogger(&buf)
		logger.SetLevel(log.DebugLevel)

		router := NewBasicRouter()
		router.Use(LoggingMiddleware(logger))
		router.Handle(http.MethodGet, "/teapot", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		}))

		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/teapot", nil))
		if !bytes.Contains(buf.Bytes(), []byte("status=418")) {
			t.Errorf("expected status in log, got %q", buf.String())
		}
	})
}

func TestCallbackHandler(t *testing.T) {
	call := func(h *CallbackHandler, query string) *httptest.ResponseRecorder {
		router := NewBasicRouter()
		router.Handler(h)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/callback?"+query, nil))
		return rec
	}

	t.Run("Success", func(t *testing.T) {
		h := NewCallbackHandler("", "s1")
		rec := call(h, "state=s1&code=abc")
		if rec.Code != http.StatusOK {
			t.Errorf("expected 200, got %d", rec.Code)
		}

		res := <-h.Result()
		if res.Err != nil || res.Code != "abc" {
			t.Errorf("unexpected result %+v", res)
		}
	})

	t.Run("State mismatch", func(t *testing.T) {
		h := NewCallbackHandler("/callback", "s1")
		rec := call(h, "state=evil&code=abc")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
		if res := <-h.Result(); !errors.Is(res.Err, shared.ErrAuthExchangeFailed) {
			t.Errorf("expected ErrAuthExchangeFailed, got %v", res.Err)
		}
	})

	t.Run("Access denied", func(t *testing.T) {
		h := NewCallbackHandler("", "s1")
		call(h, "state=s1&error=access_denied")
		if res := <-h.Result(); !errors.Is(res.Err, shared.ErrAuthCancelled) {
			t.Errorf("expected ErrAuthCancelled, got %v", res.Err)
		}
	})

	t.Run("Server error", func(t *testing.T) {
		h := NewCallbackHandler("", "s1")
		call(h, "state=s1&error=server_error&error_description=down")
		if res := <-h.Result(); !errors.Is(res.Err, shared.ErrAuthExchangeFailed) {
			t.Errorf("expected ErrAuthExchangeFailed, got %v", res.Err)
		}
	})

	t.Run("Missing code", func(t *testing.T) {
		h := NewCallbackHandler("", "s1")
		call(h, "state=s1")
		if res := <-h.Result(); !errors.Is(res.Err, shared.ErrAuthExchangeFailed) {
			t.Errorf("expected ErrAuthExchangeFailed, got %v", res.Err)
		}
	})

	t.Run("Only first callback counts", func(t *testing.T) {
		h := NewCallbackHandler("", "s1")
		call(h, "state=s1&code=first")
		rec := call(h, "state=s1&code=second")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400 on replay, got %d", rec.Code)
		}
		if res := <-h.Result(); res.Code != "first" {
			t.Errorf("expected first code, got %q", res.Code)
		}
	})
}

func TestServe(t *testing.T) {
	ln, err := Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Serve(ctx, ln, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, "ok")
		}), shared.NewLogger(io.Discard))
	}()

	resp, err := http.Get("http://" + ln.Addr().String() + "/")
	if err != nil {
		t.Fatalf("GET error: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != "ok" {
		t.Errorf("expected ok, got %q", body)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve() returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve() did not return after cancel")
	}
}
