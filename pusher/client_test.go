package pusher

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"hostclass/config"

	"github.com/gorilla/websocket"
)

type fakeSuffixes struct {
	calls chan struct{}
}

func (f *fakeSuffixes) ForceLoad() (bool, error) {
	f.calls <- struct{}{}
	return true, nil
}

type fakeLists struct {
	ids chan string
}

func (f *fakeLists) RefreshListsByBaseID(baseID string) error {
	f.ids <- baseID
	if baseID == "missing" {
		return errors.New("no lists found")
	}
	return nil
}

// realtimeServer speaks just enough of the Pusher protocol for the client.
type realtimeServer struct {
	*httptest.Server

	mu         sync.Mutex
	subscribed chan string
	conn       *websocket.Conn
	path       string
	query      url.Values
	userAgent  string
}

func newRealtimeServer(t *testing.T) *realtimeServer {
	t.Helper()

	rs := &realtimeServer{subscribed: make(chan string, 4)}
	upgrader := websocket.Upgrader{}

	rs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}

		rs.mu.Lock()
		rs.conn = conn
		rs.path = r.URL.Path
		rs.query = r.URL.Query()
		rs.userAgent = r.UserAgent()
		rs.mu.Unlock()

		established, _ := json.Marshal(`{"socket_id":"123.456","activity_timeout":120}`)
		conn.WriteJSON(Message{Event: "pusher:connection_established", Data: established})

		for {
			var msg Message
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			if msg.Event == "pusher:subscribe" {
				var data struct {
					Channel string `json:"channel"`
				}
				json.Unmarshal(msg.Data, &data)
				rs.subscribed <- data.Channel
			}
		}
	}))
	t.Cleanup(rs.Close)

	return rs
}

func (rs *realtimeServer) send(t *testing.T, event string, data string) {
	t.Helper()

	encoded, _ := json.Marshal(data)

	rs.mu.Lock()
	defer rs.mu.Unlock()
	if err := rs.conn.WriteJSON(Message{Event: event, Channel: "hostclass", Data: encoded}); err != nil {
		t.Fatalf("send failed: %v", err)
	}
}

func (rs *realtimeServer) config(t *testing.T) *config.RealtimeConfig {
	t.Helper()

	u, _ := url.Parse(rs.URL)
	port, _ := strconv.Atoi(u.Port())
	return &config.RealtimeConfig{
		Key:     "app-key",
		Host:    u.Hostname(),
		Port:    port,
		Channel: "hostclass",
	}
}

func TestNewClientDisabled(t *testing.T) {
	if NewClient(nil, "ua", "1.0", false) != nil {
		t.Error("nil config must not create a client")
	}
	if NewClient(&config.RealtimeConfig{Key: "k"}, "ua", "1.0", false) != nil {
		t.Error("config without channel must not create a client")
	}
}

func TestRefreshEvents(t *testing.T) {
	rs := newRealtimeServer(t)

	client := NewClient(rs.config(t), "hostclass/test", "1.2.3", false)
	suffixes := &fakeSuffixes{calls: make(chan struct{}, 1)}
	lists := &fakeLists{ids: make(chan string, 2)}
	client.HandleRefreshEvents(suffixes, lists)

	if err := client.Connect(); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Disconnect()

	select {
	case channel := <-rs.subscribed:
		if channel != "hostclass" {
			t.Errorf("subscribed to %q", channel)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("client did not subscribe")
	}

	if !client.IsConnected() {
		t.Error("client should report the connection")
	}

	rs.mu.Lock()
	if rs.path != "/app/app-key" || rs.query.Get("client") != "hostclass" || rs.query.Get("version") != "1.2.3" {
		t.Errorf("unexpected handshake %s?%s", rs.path, rs.query.Encode())
	}
	if rs.userAgent != "hostclass/test" {
		t.Errorf("User-Agent = %q", rs.userAgent)
	}
	rs.mu.Unlock()

	rs.send(t, EventSuffixListRefresh, `{}`)
	select {
	case <-suffixes.calls:
	case <-time.After(5 * time.Second):
		t.Fatal("suffix list refresh not triggered")
	}

	rs.send(t, EventIPListRefresh, `{"id":"cloud"}`)
	select {
	case id := <-lists.ids:
		if id != "cloud" {
			t.Errorf("refreshed %q, want cloud", id)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("ip list refresh not triggered")
	}

	// Payload without an id is ignored
	rs.send(t, EventIPListRefresh, `{}`)
	select {
	case id := <-lists.ids:
		t.Errorf("unexpected refresh of %q", id)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestReconnectAfterConnectionLoss(t *testing.T) {
	ReconnectDelay = 50 * time.Millisecond
	defer func() { ReconnectDelay = 5 * time.Second }()

	rs := newRealtimeServer(t)

	client := NewClient(rs.config(t), "hostclass/test", "1.0", false)
	if err := client.Connect(); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Disconnect()

	<-rs.subscribed

	rs.mu.Lock()
	rs.conn.Close()
	rs.mu.Unlock()

	select {
	case <-rs.subscribed:
	case <-time.After(5 * time.Second):
		t.Fatal("client did not reconnect")
	}
}

func TestUnmarshalMessageData(t *testing.T) {
	var data struct {
		ID string `json:"id"`
	}

	if err := unmarshalMessageData(json.RawMessage(`"{\"id\":\"a\"}"`), &data); err != nil || data.ID != "a" {
		t.Errorf("string-encoded payload: %v %+v", err, data)
	}
	if err := unmarshalMessageData(json.RawMessage(`{"id":"b"}`), &data); err != nil || data.ID != "b" {
		t.Errorf("object payload: %v %+v", err, data)
	}
	if err := unmarshalMessageData(json.RawMessage(`"not json"`), &data); err == nil {
		t.Error("expected error for invalid payload")
	}
}

func TestBuildWebSocketURL(t *testing.T) {
	c := NewClient(&config.RealtimeConfig{
		Key:       "key",
		Host:      "realtime.example",
		Port:      443,
		Channel:   "private-hostclass",
		Encrypted: true,
	}, "ua", "2.0", false)

	got := c.buildWebSocketURL()
	if !strings.HasPrefix(got, "wss://realtime.example:443/app/key?") {
		t.Errorf("unexpected URL %s", got)
	}
	if !strings.Contains(got, "protocol=7") {
		t.Errorf("protocol version missing: %s", got)
	}
}

func TestChannelAuth(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		if r.Header.Get("Authorization") != "Bearer secret" || r.PostForm.Get("socket_id") != "1.2" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"auth": "key:signature"})
	}))
	defer ts.Close()

	cfg := &config.RealtimeConfig{Key: "key", Channel: "private-hostclass", AuthURL: ts.URL, Token: "secret"}
	c := NewClient(cfg, "ua", "1.0", false)

	auth, err := c.channelAuth(cfg, "1.2")
	if err != nil {
		t.Fatalf("channelAuth failed: %v", err)
	}
	if auth != "key:signature" {
		t.Errorf("auth = %q", auth)
	}

	if _, err := c.channelAuth(cfg, "9.9"); err == nil {
		t.Error("expected error for rejected auth")
	}

	cfg.AuthURL = ""
	if _, err := c.channelAuth(cfg, "1.2"); err == nil {
		t.Error("expected error without auth URL")
	}
}
