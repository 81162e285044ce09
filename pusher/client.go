// Package pusher subscribes to a Pusher-protocol realtime channel and turns
// its events into forced refreshes of the suffix list and IP lists.
package pusher

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"hostclass/config"

	"github.com/gorilla/websocket"
)

const (
	EventSuffixListRefresh = "suffix-list.refresh"
	EventIPListRefresh     = "ip-list.refresh"
)

// ReconnectDelay is the pause between connection attempts.
var ReconnectDelay = 5 * time.Second

// Message represents a Pusher protocol message
type Message struct {
	Event   string          `json:"event"`
	Data    json.RawMessage `json:"data"`
	Channel string          `json:"channel,omitempty"`
}

// MessageHandler defines the callback function for handling Realtime events
type MessageHandler func(message Message)

type connectionEstablished struct {
	SocketID        string `json:"socket_id"`
	ActivityTimeout int    `json:"activity_timeout"`
}

// SuffixListRefresher is implemented by suffixlist.Loader.
type SuffixListRefresher interface {
	ForceLoad() (bool, error)
}

// IPListRefresher is implemented by iplist.Manager.
type IPListRefresher interface {
	RefreshListsByBaseID(baseID string) error
}

// Client manages Realtime WebSocket connections
type Client struct {
	config         *config.RealtimeConfig
	userAgent      string
	version        string
	verbose        bool
	conn           *websocket.Conn
	connDone       chan struct{}
	socketID       string
	isConnected    bool
	isConnecting   bool
	reconnectTimer *time.Timer
	stopChan       chan struct{}
	eventHandlers  map[string]MessageHandler
	mu             sync.RWMutex
	writeMu        sync.Mutex
}

// NewClient creates a client for cfg. It returns nil when cfg does not
// enable realtime updates.
func NewClient(cfg *config.RealtimeConfig, userAgent, version string, verbose bool) *Client {
	if !cfg.Enabled() {
		return nil
	}

	return &Client{
		config:        cfg,
		userAgent:     userAgent,
		version:       version,
		verbose:       verbose,
		stopChan:      make(chan struct{}),
		eventHandlers: make(map[string]MessageHandler),
	}
}

// HandleRefreshEvents routes the refresh events to suffixes and lists.
// Either may be nil.
func (c *Client) HandleRefreshEvents(suffixes SuffixListRefresher, lists IPListRefresher) {
	if suffixes != nil {
		c.OnEvent(EventSuffixListRefresh, func(msg Message) {
			updated, err := suffixes.ForceLoad()
			if err != nil {
				log.Printf("[realtime] Suffix list refresh failed: %v", err)
				return
			}
			log.Printf("[realtime] Suffix list refreshed (updated: %v)", updated)
		})
	}

	if lists != nil {
		c.OnEvent(EventIPListRefresh, func(msg Message) {
			var data struct {
				ID string `json:"id"`
			}
			if err := unmarshalMessageData(msg.Data, &data); err != nil || data.ID == "" {
				log.Printf("[realtime] Invalid %s payload: %s", msg.Event, msg.Data)
				return
			}
			if err := lists.RefreshListsByBaseID(data.ID); err != nil {
				log.Printf("[realtime] IP list refresh for %s failed: %v", data.ID, err)
			}
		})
	}
}

// Connect establishes a connection to Realtime
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil || c.isConnecting || !c.config.Enabled() {
		return nil
	}

	c.isConnecting = true

	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second

	conn, _, err := dialer.Dial(c.buildWebSocketURL(), http.Header{
		"User-Agent": {c.userAgent},
	})
	c.isConnecting = false
	if err != nil {
		return fmt.Errorf("failed to connect to WebSocket: %w", err)
	}

	c.conn = conn
	c.connDone = make(chan struct{})

	log.Printf("[realtime] Connected to %s", c.config.Host)

	go c.handleMessages(conn, c.connDone)

	return nil
}

// Start connects and keeps retrying in the background when the first
// attempt fails.
func (c *Client) Start() {
	if err := c.Connect(); err != nil {
		log.Printf("[realtime] Connection failed, retrying in %v: %v", ReconnectDelay, err)
		c.scheduleReconnect()
	}
}

// IsConnected reports whether the server confirmed the connection.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isConnected
}

// UpdateConfig applies a new configuration and reconnects when it changed.
// A disabled configuration disconnects.
func (c *Client) UpdateConfig(newConfig *config.RealtimeConfig) {
	c.mu.Lock()

	if !newConfig.Enabled() {
		c.config = newConfig
		c.closeConnLocked()
		c.mu.Unlock()
		return
	}

	wasEnabled := c.config.Enabled()
	changed := !wasEnabled || *c.config != *newConfig
	c.config = newConfig
	reconnect := changed && (c.conn != nil || !wasEnabled)
	if reconnect {
		log.Printf("[realtime] Configuration changed, reconnecting...")
		c.closeConnLocked()
	}
	c.mu.Unlock()

	if reconnect {
		go func() {
			if err := c.Connect(); err != nil {
				log.Printf("[realtime] Failed to reconnect with new config: %v", err)
				c.scheduleReconnect()
			}
		}()
	}
}

// OnEvent registers an event handler for specific event types
func (c *Client) OnEvent(eventType string, handler MessageHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.eventHandlers[eventType] = handler
}

// Disconnect closes the connection and stops reconnecting.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.stopChan:
	default:
		close(c.stopChan)
	}

	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}

	c.closeConnLocked()

	log.Printf("[realtime] Disconnected")
}

func (c *Client) closeConnLocked() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	if c.connDone != nil {
		close(c.connDone)
		c.connDone = nil
	}
	c.isConnected = false
	c.isConnecting = false
}

func (c *Client) buildWebSocketURL() string {
	scheme := "ws"
	if c.config.Encrypted {
		scheme = "wss"
	}

	host := c.config.Host
	if c.config.Port > 0 {
		host = fmt.Sprintf("%s:%d", host, c.config.Port)
	}

	query := url.Values{}
	query.Set("protocol", "7")
	query.Set("client", "hostclass")
	query.Set("version", c.version)

	u := url.URL{
		Scheme:   scheme,
		Host:     host,
		Path:     "/app/" + c.config.Key,
		RawQuery: query.Encode(),
	}
	return u.String()
}

// handleMessages reads from conn until it fails or done is closed.
func (c *Client) handleMessages(conn *websocket.Conn, done chan struct{}) {
	defer func() {
		c.mu.Lock()
		current := c.conn == conn
		if current {
			c.closeConnLocked()
		}
		c.mu.Unlock()

		if !current {
			return
		}

		select {
		case <-c.stopChan:
		default:
			if c.verbose {
				log.Printf("[realtime] Connection lost, scheduling reconnect...")
			}
			c.scheduleReconnect()
		}
	}()

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			select {
			case <-done:
			default:
				log.Printf("[realtime] Failed to read message: %v", err)
			}
			return
		}

		c.handlePusherMessage(conn, done, msg)
	}
}

func (c *Client) handlePusherMessage(conn *websocket.Conn, done chan struct{}, msg Message) {
	if c.verbose {
		log.Printf("[realtime] %s => %s", msg.Event, msg.Data)
	}

	switch msg.Event {
	case "pusher:connection_established":
		var data connectionEstablished
		if err := unmarshalMessageData(msg.Data, &data); err != nil {
			log.Printf("[realtime] Failed to parse connection established data: %v", err)
			return
		}

		c.mu.Lock()
		c.socketID = data.SocketID
		c.isConnected = true
		c.mu.Unlock()

		if c.verbose {
			log.Printf("[realtime] Connection established, socket ID: %s", data.SocketID)
		}

		go c.keepAlive(conn, done, data.ActivityTimeout)
		go func() {
			if err := c.subscribe(conn, data.SocketID); err != nil {
				log.Printf("[realtime] Failed to subscribe to channel: %v", err)
			}
		}()

	case "pusher:ping":
		c.send(conn, Message{Event: "pusher:pong"})

	case "pusher:pong":

	case "pusher:error":
		log.Printf("[realtime] Received error: %s", string(msg.Data))

	case "pusher_internal:subscription_succeeded":
		if c.verbose {
			log.Printf("[realtime] Successfully subscribed to channel: %s", msg.Channel)
		}

	default:
		if !c.notifyEventListeners(msg) {
			log.Printf("[realtime] Received unhandled event: %s", msg.Event)
		}
	}
}

// unmarshalMessageData decodes event data, which Pusher usually sends as a
// JSON document encoded into a string.
func unmarshalMessageData(data json.RawMessage, v interface{}) error {
	var dataStr string
	if err := json.Unmarshal(data, &dataStr); err != nil {
		if err := json.Unmarshal(data, v); err != nil {
			return fmt.Errorf("failed to unmarshal data: %w", err)
		}
		return nil
	}

	if err := json.Unmarshal([]byte(dataStr), v); err != nil {
		return fmt.Errorf("failed to unmarshal data: %w", err)
	}
	return nil
}

func (c *Client) keepAlive(conn *websocket.Conn, done chan struct{}, activityTimeout int) {
	if activityTimeout <= 0 {
		activityTimeout = 60
	}

	ticker := time.NewTicker(time.Duration(activityTimeout) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.send(conn, Message{Event: "pusher:ping"})
		case <-done:
			return
		case <-c.stopChan:
			return
		}
	}
}

func (c *Client) send(conn *websocket.Conn, msg Message) error {
	if msg.Data == nil {
		msg.Data = json.RawMessage(`{}`)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("failed to send %s: %w", msg.Event, err)
	}
	return nil
}

func (c *Client) subscribe(conn *websocket.Conn, socketID string) error {
	c.mu.RLock()
	cfg := c.config
	c.mu.RUnlock()

	subscribeData := map[string]interface{}{
		"channel": cfg.Channel,
	}

	if strings.HasPrefix(cfg.Channel, "private-") {
		auth, err := c.channelAuth(cfg, socketID)
		if err != nil {
			return fmt.Errorf("failed to generate auth: %w", err)
		}
		subscribeData["auth"] = auth
	}

	dataBytes, err := json.Marshal(subscribeData)
	if err != nil {
		return err
	}

	if err := c.send(conn, Message{Event: "pusher:subscribe", Data: dataBytes}); err != nil {
		return err
	}

	if c.verbose {
		log.Printf("[realtime] Subscribing to channel: %s", cfg.Channel)
	}
	return nil
}

// channelAuth asks the auth endpoint to sign a private channel
// subscription.
func (c *Client) channelAuth(cfg *config.RealtimeConfig, socketID string) (string, error) {
	if cfg.AuthURL == "" {
		return "", fmt.Errorf("auth URL required for private channels")
	}

	form := url.Values{}
	form.Set("socket_id", socketID)
	form.Set("channel_name", cfg.Channel)

	req, err := http.NewRequest(http.MethodPost, cfg.AuthURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create auth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", c.userAgent)
	if cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.Token)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("auth request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("auth request returned status %d", resp.StatusCode)
	}

	var authResp struct {
		Auth string `json:"auth"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&authResp); err != nil {
		return "", fmt.Errorf("failed to decode auth response: %w", err)
	}

	return authResp.Auth, nil
}

func (c *Client) notifyEventListeners(msg Message) bool {
	c.mu.RLock()
	handler, ok := c.eventHandlers[msg.Event]
	c.mu.RUnlock()

	if ok {
		go handler(msg)
	}
	return ok
}

func (c *Client) scheduleReconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.stopChan:
		return
	default:
	}

	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
	}

	c.reconnectTimer = time.AfterFunc(ReconnectDelay, func() {
		select {
		case <-c.stopChan:
			return
		default:
		}

		if c.verbose {
			log.Printf("[realtime] Attempting to reconnect...")
		}
		if err := c.Connect(); err != nil {
			log.Printf("[realtime] Reconnection failed: %v", err)
			c.scheduleReconnect()
		}
	})
}
