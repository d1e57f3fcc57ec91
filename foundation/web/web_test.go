package web_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/ardanlabs/utxochain/foundation/web"
	"github.com/stretchr/testify/require"
)

func Test_Handle(t *testing.T) {
	shutdown := make(chan os.Signal, 1)

	var order []string
	mw := func(name string) web.Middleware {
		return func(handler web.Handler) web.Handler {
			return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
				order = append(order, name)
				return handler(ctx, w, r)
			}
		}
	}

	app := web.NewApp(shutdown, mw("app"))

	app.Handle(http.MethodGet, "v1", "/echo/:name", func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		v, err := web.GetValues(ctx)
		if err != nil {
			return err
		}
		resp := struct {
			Name    string `json:"name"`
			TraceID string `json:"trace_id"`
		}{
			Name:    web.Param(r, "name"),
			TraceID: v.TraceID,
		}
		return web.Respond(ctx, w, resp, http.StatusOK)
	}, mw("route"))

	app.Handle(http.MethodPost, "v1", "/decode", func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		var req struct {
			Amount uint64 `json:"amount"`
		}
		if err := web.Decode(r, &req); err != nil {
			return web.Respond(ctx, w, nil, http.StatusBadRequest)
		}
		return web.Respond(ctx, w, nil, http.StatusNoContent)
	})

	app.Handle(http.MethodGet, "", "/broken", func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		return web.NewShutdownError("integrity issue")
	})

	t.Run("param", func(t *testing.T) {
		w := httptest.NewRecorder()
		app.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/echo/bill", nil))

		require.Equal(t, http.StatusOK, w.Code)
		require.Equal(t, "application/json", w.Header().Get("Content-Type"))

		var resp map[string]string
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		require.Equal(t, "bill", resp["name"])
		require.NotEmpty(t, resp["trace_id"])
		require.Equal(t, []string{"app", "route"}, order)
	})

	t.Run("decode", func(t *testing.T) {
		w := httptest.NewRecorder()
		app.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/decode", strings.NewReader(`{"amount":10}`)))
		require.Equal(t, http.StatusNoContent, w.Code)

		w = httptest.NewRecorder()
		app.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/decode", strings.NewReader(`{"amount":10,"fee":1}`)))
		require.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("shutdown", func(t *testing.T) {
		w := httptest.NewRecorder()
		app.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/broken", nil))

		select {
		case <-shutdown:
		default:
			t.Fatal("should signal a shutdown")
		}
	})
}

func Test_GetValuesMissing(t *testing.T) {
	_, err := web.GetValues(context.Background())
	require.Error(t, err)
	require.Equal(t, "00000000-0000-0000-0000-000000000000", web.GetTraceID(context.Background()))
	require.False(t, web.IsShutdown(err))
}
