package main

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

// UI clients speak JSON-RPC 2.0 over /ws with positional params. State
// and job changes are pushed as notifications.

type rpcRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params,omitempty"`
	ID      interface{}       `json:"id,omitempty"`
}

type rpcResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result,omitempty"`
	Error   *rpcError   `json:"error,omitempty"`
	ID      interface{} `json:"id,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcNotification struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
}

func decodeParams(params []json.RawMessage, dst ...interface{}) error {
	if len(params) < len(dst) {
		return errors.Errorf("expected %d params, got %d", len(dst), len(params))
	}
	for i, v := range dst {
		err := json.Unmarshal(params[i], v)
		if err != nil {
			return errors.Wrapf(err, "param %d", i)
		}
	}
	return nil
}

func (a *api) dispatch(method string, params []json.RawMessage) (interface{}, error) {
	switch method {
	case "getState":
		return a.m.State(), nil
	case "manualMoveStart":
		var group string
		err := decodeParams(params, &group)
		if err != nil {
			return nil, err
		}
		dirs := make([]float64, len(params)-1)
		for i, p := range params[1:] {
			err = json.Unmarshal(p, &dirs[i])
			if err != nil {
				return nil, errors.Wrapf(err, "direction %d", i)
			}
		}
		return nil, a.m.ManualMoveStart(group, dirs...)
	case "manualMoveStop":
		var group string
		err := decodeParams(params, &group)
		if err != nil {
			return nil, err
		}
		return nil, a.m.ManualMoveStop(group)
	case "manualSwitch":
		var relay string
		var on bool
		err := decodeParams(params, &relay, &on)
		if err != nil {
			return nil, err
		}
		return nil, a.m.ManualSwitch(relay, on)
	case "setCalibration":
		var kind string
		var valueMm float64
		err := decodeParams(params, &kind, &valueMm)
		if err != nil {
			return nil, err
		}
		return nil, a.m.SetCalibration(kind, valueMm)
	case "resetUserOrigin":
		return nil, a.m.ResetUserOrigin()
	case "emergencyStop":
		a.m.EmergencyStop()
		return nil, nil
	}
	return nil, errors.Errorf("method not found: %s", method)
}

type wsClient struct {
	a    *api
	conn *websocket.Conn
	send chan interface{}

	once sync.Once
	done chan struct{}
}

func (a *api) serveWS(w http.ResponseWriter, req *http.Request) {
	conn, err := a.upgrader.Upgrade(w, req, nil)
	if err != nil {
		a.log.Warn("websocket upgrade", "err", err)
		return
	}

	c := &wsClient{
		a:    a,
		conn: conn,
		send: make(chan interface{}, 64),
		done: make(chan struct{}),
	}
	a.wsMx.Lock()
	a.clients[c] = struct{}{}
	a.wsMx.Unlock()
	a.log.Info("websocket connected", "remote", req.RemoteAddr)

	go c.writeLoop()
	c.Send(rpcNotification{JSONRPC: "2.0", Method: "stateChanged", Params: a.m.State()})
	c.readLoop()

	a.wsMx.Lock()
	delete(a.clients, c)
	a.wsMx.Unlock()
	a.log.Info("websocket disconnected", "remote", req.RemoteAddr)
}

// broadcast pushes a notification to every connected client.
func (a *api) broadcast(method string, params interface{}) {
	msg := rpcNotification{JSONRPC: "2.0", Method: method, Params: params}

	a.wsMx.Lock()
	defer a.wsMx.Unlock()
	for c := range a.clients {
		c.Send(msg)
	}
}

// Send queues msg for the client. Messages to a slow client are dropped.
func (c *wsClient) Send(msg interface{}) {
	select {
	case c.send <- msg:
	case <-c.done:
	default:
		c.a.log.Warn("websocket client too slow, dropping message")
	}
}

func (c *wsClient) Close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

func (c *wsClient) readLoop() {
	defer c.Close()

	c.conn.SetReadLimit(64 * 1024)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.a.log.Warn("websocket read", "err", err)
			}
			return
		}
		c.handle(data)
	}
}

func (c *wsClient) writeLoop() {
	ping := time.NewTicker(30 * time.Second)
	defer ping.Stop()
	defer c.Close()

	for {
		select {
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			err := c.conn.WriteJSON(msg)
			if err != nil {
				c.a.log.Warn("websocket write", "err", err)
				return
			}
		case <-ping.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			err := c.conn.WriteMessage(websocket.PingMessage, nil)
			if err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *wsClient) handle(data []byte) {
	var req rpcRequest
	err := json.Unmarshal(data, &req)
	if err != nil {
		c.Send(rpcResponse{JSONRPC: "2.0", Error: &rpcError{Code: -32700, Message: "parse error"}})
		return
	}

	res, err := c.a.dispatch(req.Method, req.Params)
	if err != nil {
		c.Send(rpcResponse{JSONRPC: "2.0", ID: req.ID, Error: &rpcError{Code: -32000, Message: err.Error()}})
		return
	}
	if res == nil {
		res = struct{}{}
	}
	c.Send(rpcResponse{JSONRPC: "2.0", ID: req.ID, Result: res})
}
