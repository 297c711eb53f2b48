// SPDX-License-Identifier: MIT
package transport

import (
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	applog "emgrep/internal/log"

	"github.com/gorilla/websocket"
	"github.com/inconshreveable/log15"
)

const wsWriteTimeout = 2 * time.Second

// WebSocketTransport broadcasts every engine message as JSON to connected
// WebSocket clients. It serves on its own address when one is given and can
// also be mounted on another router through ServeHTTP.
type WebSocketTransport struct {
	logger    log15.Logger
	upgrader  websocket.Upgrader
	clients   map[*websocket.Conn]struct{}
	clientsMu sync.Mutex
	broadcast chan any
	done      chan struct{}
	closeOnce sync.Once
	server    *http.Server
	dropped   atomic.Uint64
}

// NewWebSocketTransport starts the broadcast loop. When addr is not empty an
// HTTP server is started serving the feed on /ws.
func NewWebSocketTransport(addr string) *WebSocketTransport {
	wst := &WebSocketTransport{
		logger: applog.New("transport", "websocket"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients:   make(map[*websocket.Conn]struct{}),
		broadcast: make(chan any, 256),
		done:      make(chan struct{}),
	}
	go wst.handleBroadcasts()

	if addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/ws", wst)
		wst.server = &http.Server{Addr: addr, Handler: mux}
		go func() {
			wst.logger.Info("serving live feed", "addr", addr, "path", "/ws")
			if err := wst.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				wst.logger.Error("server failed", "err", err)
			}
		}()
	}
	return wst
}

// ServeHTTP upgrades the request and registers the client. Clients are
// receive-only; anything they send is discarded.
func (wst *WebSocketTransport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := wst.upgrader.Upgrade(w, r, nil)
	if err != nil {
		wst.logger.Warn("upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}

	wst.clientsMu.Lock()
	wst.clients[conn] = struct{}{}
	n := len(wst.clients)
	wst.clientsMu.Unlock()
	wst.logger.Info("client connected", "remote", conn.RemoteAddr(), "clients", n)

	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				wst.drop(conn)
				return
			}
		}
	}()
}

// Clients returns the number of connected clients.
func (wst *WebSocketTransport) Clients() int {
	wst.clientsMu.Lock()
	defer wst.clientsMu.Unlock()
	return len(wst.clients)
}

func (wst *WebSocketTransport) drop(conn *websocket.Conn) {
	wst.clientsMu.Lock()
	_, ok := wst.clients[conn]
	delete(wst.clients, conn)
	n := len(wst.clients)
	wst.clientsMu.Unlock()
	if ok {
		conn.Close()
		wst.logger.Info("client disconnected", "remote", conn.RemoteAddr(), "clients", n)
	}
}

func (wst *WebSocketTransport) handleBroadcasts() {
	for {
		select {
		case <-wst.done:
			return
		case data := <-wst.broadcast:
			wst.clientsMu.Lock()
			var failed []*websocket.Conn
			for client := range wst.clients {
				client.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
				if err := client.WriteJSON(data); err != nil {
					wst.logger.Debug("write failed", "remote", client.RemoteAddr(), "err", err)
					failed = append(failed, client)
				}
			}
			wst.clientsMu.Unlock()
			for _, c := range failed {
				wst.drop(c)
			}
		}
	}
}

// Send queues data for broadcast. A full queue drops the message; slow
// clients never stall the engine.
func (wst *WebSocketTransport) Send(data any) error {
	select {
	case wst.broadcast <- data:
	default:
		if n := wst.dropped.Add(1); n%100 == 1 {
			wst.logger.Warn("broadcast queue full, dropping messages", "dropped", n)
		}
	}
	return nil
}

// Close disconnects every client and stops the server if one was started.
func (wst *WebSocketTransport) Close() error {
	var err error
	wst.closeOnce.Do(func() {
		close(wst.done)
		wst.clientsMu.Lock()
		for client := range wst.clients {
			client.Close()
		}
		wst.clients = make(map[*websocket.Conn]struct{})
		wst.clientsMu.Unlock()

		if wst.server != nil {
			err = wst.server.Close()
		}
		wst.logger.Info("closed")
	})
	return err
}

var _ Transport = (*WebSocketTransport)(nil)
