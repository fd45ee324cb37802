package web

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"chatagent/pkg/api"
	"chatagent/pkg/utils"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DefaultPort matches the port the chat endpoint has always been served on.
const DefaultPort = 8000

const (
	maxBodyBytes     = 1 << 20
	shutdownTimeout  = 5 * time.Second
	internalErrorMsg = "internal server error"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for decoupled UI
	},
}

type WebConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"` // Default: 8000, 0 picks a free port
}

// Frame is the websocket reply envelope.
type Frame struct {
	Type     string `json:"type"` // "reply" or "error"
	ThreadID string `json:"thread_id"`
	Text     string `json:"text,omitempty"`
	Error    string `json:"error,omitempty"`
}

type SafeConn struct {
	*websocket.Conn
	mu sync.Mutex
}

func (sc *SafeConn) WriteJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.Conn.WriteMessage(websocket.TextMessage, data)
}

// WebChannel serves the HTTP chat endpoint and its websocket variant.
type WebChannel struct {
	config      WebConfig
	server      *http.Server
	listener    net.Listener
	connections map[string]*SafeConn // Map connection id -> WS Connection
	mu          sync.RWMutex
}

func NewWebChannel(cfg WebConfig) *WebChannel {
	return &WebChannel{
		config:      cfg,
		connections: make(map[string]*SafeConn),
	}
}

func (c *WebChannel) ID() string {
	return "web"
}

// Handler builds the HTTP routes bound to ctx.
func (c *WebChannel) Handler(ctx api.ChannelContext) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/chat", func(w http.ResponseWriter, r *http.Request) {
		c.handleChat(w, r, ctx)
	})
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		c.handleWebSocket(w, r, ctx)
	})
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return mux
}

func (c *WebChannel) Start(ctx api.ChannelContext) error {
	addr := net.JoinHostPort(c.config.Host, fmt.Sprint(c.config.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("web: listen %s: %w", addr, err)
	}

	c.mu.Lock()
	c.listener = ln
	c.server = &http.Server{
		Handler:           c.Handler(ctx),
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv := c.server
	c.mu.Unlock()

	slog.Info("Web API listening", "addr", ln.Addr().String())

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Web API server error", "error", err)
		}
	}()

	return nil
}

// Addr is the bound listen address, empty before Start.
func (c *WebChannel) Addr() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.listener == nil {
		return ""
	}
	return c.listener.Addr().String()
}

func (c *WebChannel) Stop() error {
	c.mu.Lock()
	srv := c.server
	conns := make([]*SafeConn, 0, len(c.connections))
	for _, conn := range c.connections {
		conns = append(conns, conn)
	}
	c.mu.Unlock()

	if srv == nil {
		return nil
	}
	// Hijacked websocket connections are not tracked by the server.
	for _, conn := range conns {
		conn.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(ctx)
}

func (c *WebChannel) handleChat(w http.ResponseWriter, r *http.Request, ctx api.ChannelContext) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "could not read request body"})
		return
	}
	var req api.ChatRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	reply, err := ctx.Chat(api.WithChannelID(r.Context(), c.ID()), req)
	if err != nil {
		if errors.Is(err, api.ErrInvalidRequest) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		// Details stay in the logs.
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": internalErrorMsg})
		return
	}

	writeJSON(w, http.StatusOK, reply)
}

func (c *WebChannel) handleWebSocket(w http.ResponseWriter, r *http.Request, ctx api.ChannelContext) {
	rawConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("WS Upgrade failed", "error", err)
		return
	}

	conn := &SafeConn{Conn: rawConn}
	connID := utils.GenerateID()

	c.mu.Lock()
	c.connections[connID] = conn
	c.mu.Unlock()

	connCtx, cancel := context.WithCancel(api.WithChannelID(r.Context(), c.ID()))
	defer func() {
		cancel()
		c.mu.Lock()
		delete(c.connections, connID)
		c.mu.Unlock()
		conn.Close()
	}()

	// Frames are read in the background so a closed socket cancels the
	// request that is currently running.
	frames := make(chan []byte)
	go func() {
		defer cancel()
		defer close(frames)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			select {
			case frames <- data:
			case <-connCtx.Done():
				return
			}
		}
	}()

	for data := range frames {
		var req api.ChatRequest
		if err := json.Unmarshal(data, &req); err != nil {
			conn.WriteJSON(Frame{Type: "error", Error: "invalid JSON frame"})
			continue
		}
		if err := req.Validate(); err != nil {
			conn.WriteJSON(Frame{Type: "error", ThreadID: req.ThreadID, Error: err.Error()})
			continue
		}

		reply, err := ctx.Chat(connCtx, req)
		if err != nil {
			if connCtx.Err() != nil {
				return
			}
			conn.WriteJSON(Frame{Type: "error", ThreadID: req.ThreadID, Error: internalErrorMsg})
			continue
		}
		if err := conn.WriteJSON(Frame{Type: "reply", ThreadID: req.ThreadID, Text: reply}); err != nil {
			slog.Warn("WS write failed", "conn", connID, "error", err)
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("Failed to marshal response", "error", err)
		status = http.StatusInternalServerError
		data = []byte(`{"error":"internal server error"}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}
