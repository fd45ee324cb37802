package web

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"chatagent/pkg/api"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

type stubService struct {
	reply func(ctx context.Context, req api.ChatRequest) (string, error)
}

func (s stubService) Chat(ctx context.Context, req api.ChatRequest) (string, error) {
	return s.reply(ctx, req)
}

func echoService() stubService {
	return stubService{reply: func(ctx context.Context, req api.ChatRequest) (string, error) {
		if api.ChannelIDFromContext(ctx) != "web" {
			return "", errors.New("missing channel id")
		}
		return "echo: " + strings.Join(req.Messages, ","), nil
	}}
}

func post(t *testing.T, srv *httptest.Server, body string) (int, string) {
	t.Helper()
	resp, err := http.Post(srv.URL+"/chat", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(data)
}

func TestChat_ReturnsJSONString(t *testing.T) {
	srv := httptest.NewServer(NewWebChannel(WebConfig{}).Handler(echoService()))
	defer srv.Close()

	status, body := post(t, srv, `{"messages":["hi","there"],"thread_id":"t1"}`)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, `"echo: hi,there"`, body)
}

func TestChat_BadRequests(t *testing.T) {
	srv := httptest.NewServer(NewWebChannel(WebConfig{}).Handler(echoService()))
	defer srv.Close()

	status, _ := post(t, srv, `{not json`)
	require.Equal(t, http.StatusBadRequest, status)

	status, _ = post(t, srv, `{"messages":[],"thread_id":"t1"}`)
	require.Equal(t, http.StatusBadRequest, status)

	status, body := post(t, srv, `{"messages":["hi"]}`)
	require.Equal(t, http.StatusBadRequest, status)
	require.Contains(t, body, "thread_id is required")

	resp, err := http.Get(srv.URL + "/chat")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestChat_EngineFailureIs500(t *testing.T) {
	svc := stubService{reply: func(context.Context, api.ChatRequest) (string, error) {
		return "", errors.New("model gateway (openai): 401 unauthorized")
	}}
	srv := httptest.NewServer(NewWebChannel(WebConfig{}).Handler(svc))
	defer srv.Close()

	status, body := post(t, srv, `{"messages":["hi"],"thread_id":"t1"}`)
	require.Equal(t, http.StatusInternalServerError, status)
	require.JSONEq(t, `{"error":"internal server error"}`, body)
	require.NotContains(t, body, "401")
}

func TestHealthz(t *testing.T) {
	srv := httptest.NewServer(NewWebChannel(WebConfig{}).Handler(echoService()))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func TestWebSocket_ReplyAndErrorFrames(t *testing.T) {
	srv := httptest.NewServer(NewWebChannel(WebConfig{}).Handler(echoService()))
	defer srv.Close()

	conn := dial(t, srv)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"messages":["a"],"thread_id":"ws-1"}`)))
	var reply Frame
	require.NoError(t, conn.ReadJSON(&reply))
	require.Equal(t, Frame{Type: "reply", ThreadID: "ws-1", Text: "echo: a"}, reply)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`garbage`)))
	var bad Frame
	require.NoError(t, conn.ReadJSON(&bad))
	require.Equal(t, "error", bad.Type)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"messages":[],"thread_id":"ws-2"}`)))
	var invalid Frame
	require.NoError(t, conn.ReadJSON(&invalid))
	require.Equal(t, "error", invalid.Type)
	require.Equal(t, "ws-2", invalid.ThreadID)
}

func TestWebSocket_CloseCancelsRequest(t *testing.T) {
	cancelled := make(chan struct{})
	svc := stubService{reply: func(ctx context.Context, req api.ChatRequest) (string, error) {
		<-ctx.Done()
		close(cancelled)
		return "", ctx.Err()
	}}
	srv := httptest.NewServer(NewWebChannel(WebConfig{}).Handler(svc))
	defer srv.Close()

	conn := dial(t, srv)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"messages":["wait"],"thread_id":"x"}`)))
	time.Sleep(50 * time.Millisecond)
	conn.Close()

	select {
	case <-cancelled:
	case <-time.After(5 * time.Second):
		t.Fatal("request was not cancelled after the socket closed")
	}
}

func TestStartStop(t *testing.T) {
	ch := NewWebChannel(WebConfig{Host: "127.0.0.1", Port: 0})
	require.NoError(t, ch.Start(echoService()))
	addr := ch.Addr()
	require.NotEmpty(t, addr)

	resp, err := http.Get("http://" + addr + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, ch.Stop())
}

func TestFactory(t *testing.T) {
	ch, err := (&WebFactory{}).Create(nil, nil)
	require.NoError(t, err)
	require.Equal(t, DefaultPort, ch.(*WebChannel).config.Port)

	ch, err = (&WebFactory{}).Create([]byte(`{"port":9090}`), nil)
	require.NoError(t, err)
	require.Equal(t, 9090, ch.(*WebChannel).config.Port)

	_, err = (&WebFactory{}).Create([]byte(`{"port":-1}`), nil)
	require.Error(t, err)
}
