package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"sync"

	sse "github.com/alexandrevicenzi/go-sse"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/mastercactapus/sled/config"
	"github.com/mastercactapus/sled/gcode"
	"github.com/mastercactapus/sled/machine"
	"github.com/mastercactapus/sled/router"
	"github.com/pkg/errors"
)

type api struct {
	http.Handler

	// ctx bounds jobs started over the API
	ctx context.Context
	log *slog.Logger

	m   *machine.Machine
	r   *router.Router
	cfg *config.Store

	sse      *sse.Server
	upgrader websocket.Upgrader

	wsMx    sync.Mutex
	clients map[*wsClient]struct{}
}

type jobInfo struct {
	Blocks int `json:"blocks"`
}

func newAPI(ctx context.Context, m *machine.Machine, r *router.Router, cfg *config.Store, uiDir string, log *slog.Logger) *api {
	log = log.With("component", "api")
	rt := mux.NewRouter()

	a := &api{
		Handler: rt,
		ctx:     ctx,
		log:     log,
		m:       m,
		r:       r,
		cfg:     cfg,
		sse: sse.NewServer(&sse.Options{
			Logger: slog.NewLogLogger(log.Handler(), slog.LevelDebug),
		}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[*wsClient]struct{}),
	}

	rt.Use(a.logRequests)

	rt.HandleFunc("/job", a.loadJob).Methods(http.MethodPost)
	rt.HandleFunc("/job", a.deleteJob).Methods(http.MethodDelete)
	rt.HandleFunc("/job", a.getJob).Methods(http.MethodGet)
	rt.HandleFunc("/job/run", a.runJob).Methods(http.MethodPost)
	rt.HandleFunc("/job/interrupt", a.interruptJob).Methods(http.MethodPost)
	rt.HandleFunc("/state", a.getState).Methods(http.MethodGet)
	rt.HandleFunc("/config", a.getConfig).Methods(http.MethodGet)
	rt.HandleFunc("/config", a.patchConfig).Methods(http.MethodPatch)
	rt.HandleFunc("/stop", a.stop).Methods(http.MethodPost)
	rt.HandleFunc("/ws", a.serveWS)
	rt.PathPrefix("/events/").Handler(a.sse)
	if uiDir != "" {
		rt.PathPrefix("/").Handler(http.FileServer(http.Dir(uiDir)))
	}

	m.OnStateChanged(func(md machine.Model) {
		a.publish("/events/state", md)
		a.broadcast("stateChanged", md)
	})
	r.OnJobChanged(func(job []gcode.Block) {
		a.publish("/events/job", jobInfo{Blocks: len(job)})
		a.broadcast("jobChanged", jobInfo{Blocks: len(job)})
	})
	r.OnSegment(func(s router.Segment) {
		a.publish("/events/segment", s)
	})

	return a
}

// Close disconnects every event stream and websocket client.
func (a *api) Close() {
	a.sse.Shutdown()

	a.wsMx.Lock()
	clients := make([]*wsClient, 0, len(a.clients))
	for c := range a.clients {
		clients = append(clients, c)
	}
	a.wsMx.Unlock()

	for _, c := range clients {
		c.Close()
	}
}

func (a *api) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "*")
		a.log.Debug("request", "method", req.Method, "path", req.URL.Path, "remote", req.RemoteAddr)
		next.ServeHTTP(w, req)
	})
}

func (a *api) publish(channel string, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		a.log.Error("marshal event", "channel", channel, "err", err)
		return
	}
	a.sse.SendMessage(channel, sse.SimpleMessage(string(data)))
}

func (a *api) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		a.log.Error("encode response", "err", err)
	}
}

// reply writes {} on success or a 400 with the error message.
func (a *api) reply(w http.ResponseWriter, err error) {
	if err != nil {
		a.log.Warn("request failed", "err", err)
		a.writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
		return
	}
	a.writeJSON(w, http.StatusOK, struct{}{})
}

func (a *api) loadJob(w http.ResponseWriter, req *http.Request) {
	a.reply(w, a.r.LoadJobFromStream(req.Body))
}

func (a *api) deleteJob(w http.ResponseWriter, req *http.Request) {
	a.reply(w, a.r.DeleteJob())
}

func (a *api) getJob(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, err := io.Copy(w, a.r.JobText())
	if err != nil {
		a.log.Error("write job", "err", err)
	}
}

func (a *api) runJob(w http.ResponseWriter, req *http.Request) {
	a.reply(w, a.r.Start(a.ctx))
}

func (a *api) interruptJob(w http.ResponseWriter, req *http.Request) {
	a.r.InterruptJob()
	a.reply(w, nil)
}

func (a *api) getState(w http.ResponseWriter, req *http.Request) {
	a.writeJSON(w, http.StatusOK, a.m.State())
}

func (a *api) getConfig(w http.ResponseWriter, req *http.Request) {
	a.writeJSON(w, http.StatusOK, a.cfg.Get())
}

func (a *api) patchConfig(w http.ResponseWriter, req *http.Request) {
	data, err := io.ReadAll(req.Body)
	if err != nil {
		a.reply(w, errors.Wrap(err, "read body"))
		return
	}
	err = a.cfg.Merge(data)
	if err != nil {
		a.reply(w, err)
		return
	}

	cfg := a.cfg.Get()
	a.m.Reconfigure(cfg)
	a.writeJSON(w, http.StatusOK, cfg)
}

func (a *api) stop(w http.ResponseWriter, req *http.Request) {
	a.m.EmergencyStop()
	a.reply(w, nil)
}
