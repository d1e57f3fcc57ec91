package mid_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/ardanlabs/utxochain/business/sys/validate"
	"github.com/ardanlabs/utxochain/business/web/errs"
	"github.com/ardanlabs/utxochain/business/web/mid"
	"github.com/ardanlabs/utxochain/foundation/logger"
	"github.com/ardanlabs/utxochain/foundation/web"
	"github.com/stretchr/testify/require"
)

func newApp() *web.App {
	log := logger.NewNop()

	app := web.NewApp(
		make(chan os.Signal, 1),
		mid.Logger(log),
		mid.Errors(log),
		mid.Metrics(),
		mid.Panics(),
	)

	app.Handle(http.MethodGet, "", "/trusted", func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		return errs.NewTrusted(errors.New("insufficient funds"), http.StatusBadRequest)
	})

	app.Handle(http.MethodGet, "", "/fields", func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		req := struct {
			To string `json:"to" validate:"required,address"`
		}{To: "bad"}
		return validate.Check(req)
	})

	app.Handle(http.MethodGet, "", "/panic", func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		panic("boom")
	})

	app.Handle(http.MethodGet, "", "/cors", func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}, mid.Cors("*"))

	return app
}

func call(t *testing.T, app *web.App, path string) (int, errs.Response, http.Header) {
	w := httptest.NewRecorder()
	app.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))

	var resp errs.Response
	if w.Code != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	}

	return w.Code, resp, w.Header()
}

func Test_Errors(t *testing.T) {
	app := newApp()

	code, resp, _ := call(t, app, "/trusted")
	require.Equal(t, http.StatusBadRequest, code)
	require.Equal(t, "insufficient funds", resp.Error)

	code, resp, _ = call(t, app, "/fields")
	require.Equal(t, http.StatusBadRequest, code)
	require.Equal(t, "data validation error", resp.Error)
	require.Contains(t, resp.Fields, "to")

	code, resp, _ = call(t, app, "/panic")
	require.Equal(t, http.StatusInternalServerError, code)
	require.Equal(t, http.StatusText(http.StatusInternalServerError), resp.Error)
}

func Test_Cors(t *testing.T) {
	code, _, header := call(t, newApp(), "/cors")
	require.Equal(t, http.StatusNoContent, code)
	require.Equal(t, "*", header.Get("Access-Control-Allow-Origin"))
}
