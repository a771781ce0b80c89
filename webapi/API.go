/*
File Name:  API.go

The HTTP presentation layer: JSON export of the current peer set, a
push channel over websockets for live progress updates, and a
Prometheus /metrics endpoint. Structurally grounded on the teacher's
webapi/API.go (WebapiInstance struct, mux.Router, Start/startWebAPI
shape, EncodeJSON helper), trimmed to the routes this spec's data
model actually needs and stripped of the teacher's search/download/
blockchain/warehouse routes, which have no counterpart here.
*/

package webapi

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	core "github.com/bitcrawl/core"
	"github.com/bitcrawl/core/identity"
)

// Instance is the web API, serving a read-only view of a crawl's
// accumulated results.
type Instance struct {
	Router *mux.Router

	mu      sync.RWMutex
	records []core.PeerRecord
	batch   identity.Batch

	// wsConn is keyed by a per-connection uuid.UUID rather than the raw
	// *websocket.Conn pointer, matching the teacher's job/download
	// registries (webapi/API.go), so a connection can be identified in
	// logs without leaking a pointer value.
	wsMu   sync.Mutex
	wsConn map[uuid.UUID]*websocket.Conn
}

// upgrader allows all origins, matching the teacher's WSUpgrader: this
// is a read-only status feed, not an authenticated control channel.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// New builds an Instance and registers its routes. staticDir, if
// non-empty, is served read-only under /files/ — an operator drop
// point for exported batches, dashboards, or anything else that
// doesn't need its own handler. Grounded on the teacher's own
// webapi/File IO.go local file serving idiom and, further back, on
// original_source/backend/serve.py's CORSRequestHandler, which serves
// the frontend's export directory the same way.
func New(staticDir string) *Instance {
	api := &Instance{
		Router: mux.NewRouter(),
		wsConn: make(map[uuid.UUID]*websocket.Conn),
	}

	api.Router.HandleFunc("/api/peers", api.handlePeers).Methods("GET")
	api.Router.HandleFunc("/api/peers/ws", api.handlePeersWS).Methods("GET")
	api.Router.HandleFunc("/api/status", api.handleStatus).Methods("GET")
	api.Router.HandleFunc("/api/batch", api.handleBatch).Methods("GET")
	api.Router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	api.Router.HandleFunc("/map", api.handleMap).Methods("GET")

	if staticDir != "" {
		fileServer := http.FileServer(http.Dir(staticDir))
		api.Router.PathPrefix("/files/").Handler(http.StripPrefix("/files/", fileServer))
	}

	return api
}

// Update replaces the exported record set. Wired as a core.ProgressFunc
// from cmd/crawld so every notify() during a crawl refreshes what /api/peers
// and the websocket feed report (spec.md §6: presentation is an external,
// pluggable collaborator driven by the crawl's progress callback).
func (api *Instance) Update(snapshot []core.PeerRecord) {
	api.mu.Lock()
	api.records = snapshot
	api.mu.Unlock()

	api.broadcast(snapshot)
}

// UpdateBatch stores the most recently signed batch envelope, exposed
// read-only at /api/batch.
func (api *Instance) UpdateBatch(batch identity.Batch) {
	api.mu.Lock()
	api.batch = batch
	api.mu.Unlock()
}

func (api *Instance) handleBatch(w http.ResponseWriter, r *http.Request) {
	api.mu.RLock()
	batch := api.batch
	api.mu.RUnlock()
	encodeJSON(w, batch)
}

func (api *Instance) snapshot() []core.PeerRecord {
	api.mu.RLock()
	defer api.mu.RUnlock()
	out := make([]core.PeerRecord, len(api.records))
	copy(out, api.records)
	return out
}

func (api *Instance) handlePeers(w http.ResponseWriter, r *http.Request) {
	encodeJSON(w, api.snapshot())
}

func (api *Instance) handleStatus(w http.ResponseWriter, r *http.Request) {
	encodeJSON(w, struct {
		PeerCount int       `json:"peer_count"`
		Generated time.Time `json:"generated"`
	}{PeerCount: len(api.snapshot()), Generated: time.Now()})
}

func (api *Instance) handlePeersWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	id := uuid.New()
	api.wsMu.Lock()
	api.wsConn[id] = conn
	api.wsMu.Unlock()

	// Send the current snapshot immediately so a late-joining client
	// doesn't wait for the next crawl batch to see anything.
	_ = conn.WriteJSON(api.snapshot())

	// Drain reads so the connection's read deadline logic (if any
	// client sends pings) doesn't block; close removes it from the
	// broadcast set.
	go func() {
		defer func() {
			api.wsMu.Lock()
			delete(api.wsConn, id)
			api.wsMu.Unlock()
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (api *Instance) broadcast(snapshot []core.PeerRecord) {
	api.wsMu.Lock()
	defer api.wsMu.Unlock()

	for id, conn := range api.wsConn {
		if err := conn.WriteJSON(snapshot); err != nil {
			conn.Close()
			delete(api.wsConn, id)
		}
	}
}

func encodeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(data)
}

// Serve starts one HTTP listener per address in listenAddresses in the
// background and returns immediately; each listener shuts down when ctx
// is canceled. Grounded on the teacher's
// startWebAPI: same http.Server shape with a hardened minimum TLS
// version, used here without TLS since the crawler exposes no
// credentials worth encrypting in transit.
func (api *Instance) Serve(ctx context.Context, listenAddresses []string, logf func(format string, args ...interface{})) {
	for _, listen := range listenAddresses {
		listen := listen
		server := &http.Server{
			Addr:         listen,
			Handler:      api.Router,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			TLSConfig:    &tls.Config{MinVersion: tls.VersionTLS12},
		}

		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = server.Shutdown(shutdownCtx)
		}()

		go func() {
			logf("webapi: listening on %s", listen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logf("webapi: listener %s stopped: %v", listen, err)
			}
		}()
	}
}
