package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mastercactapus/sled/config"
	"github.com/mastercactapus/sled/driver"
	"github.com/mastercactapus/sled/machine"
	"github.com/mastercactapus/sled/router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAPI(t *testing.T) *api {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.Defaults()
	store := config.NewStore(cfg, "", log)

	m, err := machine.New(cfg, store, driver.NewVirtual(nil), log)
	require.NoError(t, err)

	a := newAPI(context.Background(), m, router.New(m, log), store, "", log)
	t.Cleanup(a.Close)
	return a
}

func do(a *api, method, path, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	a.ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))
	return rec
}

func TestAPI_Job(t *testing.T) {
	a := newTestAPI(t)

	rec := do(a, "POST", "/job", "G21\nG90\nG0 X0 Y0 F1000\nG1 X100 Y0 F600\n")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{}`, rec.Body.String())
	assert.Len(t, a.r.Job(), 4)

	rec = do(a, "GET", "/job", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "G21\nG90\nG0X0Y0F1000\nG1X100Y0F600\n", rec.Body.String())

	rec = do(a, "POST", "/job", "G1 X1 X2 ?\n")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var msg struct{ Message string }
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &msg))
	assert.Contains(t, msg.Message, "line 1")
	assert.Len(t, a.r.Job(), 4)

	rec = do(a, "DELETE", "/job", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{}`, rec.Body.String())
	assert.Empty(t, a.r.Job())

	rec = do(a, "POST", "/job/run", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"message":"no job loaded"}`, rec.Body.String())

	rec = do(a, "PUT", "/job", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestAPI_State(t *testing.T) {
	a := newTestAPI(t)
	a.m.Tick()

	rec := do(a, "GET", "/state", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	var st machine.Model
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, machine.ModeStandby, st.Mode)
	assert.Len(t, st.Motors, 3)
	require.NotNil(t, st.Motors["a"].State)

	rec = do(a, "POST", "/stop", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPI_Config(t *testing.T) {
	a := newTestAPI(t)

	rec := do(a, "PATCH", "/config", `{"tickMs": 50, "router": {"kp": 0}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var cfg config.Config
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cfg))
	assert.Equal(t, 50, cfg.TickMs)
	assert.Equal(t, 0.0, cfg.Router.KP)
	assert.Equal(t, 0.05, cfg.Router.KD)
	assert.Equal(t, 50, a.m.Config().TickMs)

	rec = do(a, "PATCH", "/config", `{"tickMs": "fast"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 50, a.cfg.Get().TickMs)

	rec = do(a, "GET", "/config", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cfg))
	assert.Equal(t, 50, cfg.TickMs)
}

func TestAPI_WebSocket(t *testing.T) {
	a := newTestAPI(t)
	srv := httptest.NewServer(a)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var note rpcNotification
	require.NoError(t, conn.ReadJSON(&note))
	assert.Equal(t, "stateChanged", note.Method)

	call := func(id int, method string, params ...interface{}) rpcResponse {
		t.Helper()
		require.NoError(t, conn.WriteJSON(map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      id,
			"method":  method,
			"params":  params,
		}))
		var res rpcResponse
		require.NoError(t, conn.ReadJSON(&res))
		assert.EqualValues(t, id, res.ID)
		return res
	}

	res := call(1, "manualMoveStart", "a", -1)
	assert.Nil(t, res.Error)
	assert.Equal(t, -0.2, a.m.State().Motors["a"].Duty)

	res = call(2, "manualMoveStop", "a")
	assert.Nil(t, res.Error)
	assert.Equal(t, 0.0, a.m.State().Motors["a"].Duty)

	res = call(3, "manualMoveStart", "xy", 1, 0)
	require.NotNil(t, res.Error)
	assert.Equal(t, "sled position unknown", res.Error.Message)

	res = call(4, "manualSwitch", "spindle", true)
	assert.Nil(t, res.Error)
	assert.True(t, a.m.State().Relays["spindle"].On)

	res = call(5, "manualSwitch", "hoover")
	require.NotNil(t, res.Error)
	assert.Equal(t, "expected 2 params, got 1", res.Error.Message)

	res = call(6, "launch")
	require.NotNil(t, res.Error)
	assert.Equal(t, "method not found: launch", res.Error.Message)

	res = call(7, "getState")
	assert.Nil(t, res.Error)
	st, ok := res.Result.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "STANDBY", st["mode"])
}
