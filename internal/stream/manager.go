package stream

import (
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"
	"gitlab.com/nevasik7/alerting/logger"

	"zigfeed/internal/metrics"
)

// Listener receives every inbound message of a topic verbatim. Listeners are
// invoked sequentially in delivery order with the topic lock held, so a
// listener must not attach or detach from within its own callback.
type Listener func(msg []byte)

// Topic identifies one logical upstream subscription.
type Topic struct {
	Stream string
	PoolID int64 // 0 -> no pool filter
}

func (t Topic) key() string {
	return fmt.Sprintf("%s/%d", t.Stream, t.PoolID)
}

// Control message sent once per (re)connect.
type subscribeMsg struct {
	Type   string `json:"type"`
	Stream string `json:"stream"`
	PoolID int64  `json:"pool_id,omitempty"`
}

type Config struct {
	ReconnectMin time.Duration
	ReconnectMax time.Duration
	MaxAttempts  int
}

func DefaultConfig() Config {
	return Config{
		ReconnectMin: time.Second,
		ReconnectMax: 30 * time.Second,
		MaxAttempts:  5,
	}
}

// Manager owns one shared websocket connection per logical topic and fans
// inbound messages out to every attached listener. Connections are reference
// counted: the first attach dials, the last detach closes the socket and
// suppresses reconnection. Individual consumers never touch the socket.
type Manager struct {
	log    logger.Logger
	url    string
	cfg    Config
	dialer *websocket.Dialer

	mu     sync.Mutex
	topics map[string]*topicConn
}

func NewManager(log logger.Logger, url string, cfg *Config) *Manager {
	c := DefaultConfig()
	if cfg != nil {
		c = *cfg
		if c.ReconnectMin <= 0 {
			c.ReconnectMin = time.Second
		}
		if c.ReconnectMax <= 0 {
			c.ReconnectMax = 30 * time.Second
		}
		if c.MaxAttempts <= 0 {
			c.MaxAttempts = 5
		}
	}

	return &Manager{
		log:    log,
		url:    url,
		cfg:    c,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		topics: make(map[string]*topicConn),
	}
}

// Attach registers a listener for a topic and returns its detach func.
// The underlying connection is dialed lazily on the first attach and re-armed
// from idle when a listener attaches after the retry ceiling was hit.
func (m *Manager) Attach(topic Topic, fn Listener) (detach func()) {
	for {
		m.mu.Lock()
		tc, ok := m.topics[topic.key()]
		if !ok {
			tc = newTopicConn(m, topic)
			m.topics[topic.key()] = tc
		}
		m.mu.Unlock()

		if id, ok := tc.attach(fn); ok {
			return func() { tc.detach(id) }
		}

		// lost the race with a concurrent last detach that stopped this
		// conn; drop the stale entry and start over with a fresh one
		m.remove(tc)
	}
}

func (m *Manager) remove(tc *topicConn) {
	m.mu.Lock()
	if cur, ok := m.topics[tc.topic.key()]; ok && cur == tc {
		delete(m.topics, tc.topic.key())
	}
	m.mu.Unlock()
}

type topicConn struct {
	mgr   *Manager
	topic Topic
	bo    *backoff.Backoff

	mu         sync.Mutex
	listeners  map[int]Listener
	nextID     int
	conn       *websocket.Conn
	connecting bool
	attempt    int
	retryTimer *time.Timer
	stopped    bool
}

func newTopicConn(m *Manager, topic Topic) *topicConn {
	return &topicConn{
		mgr:   m,
		topic: topic,
		bo: &backoff.Backoff{
			Min:    m.cfg.ReconnectMin,
			Max:    m.cfg.ReconnectMax,
			Factor: 2,
			Jitter: false,
		},
		listeners: make(map[int]Listener),
	}
}

// attach registers one listener. It reports false once the conn has been
// stopped by its last detach; the manager then retries with a fresh conn.
func (tc *topicConn) attach(fn Listener) (int, bool) {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	if tc.stopped {
		return 0, false
	}

	id := tc.nextID
	tc.nextID++
	tc.listeners[id] = fn

	// idle (first listener, or retries exhausted earlier) -> connect
	if tc.conn == nil && !tc.connecting && tc.retryTimer == nil {
		tc.attempt = 0
		tc.connecting = true
		go tc.connect()
	}

	return id, true
}

func (tc *topicConn) detach(id int) {
	tc.mu.Lock()
	delete(tc.listeners, id)
	last := len(tc.listeners) == 0
	if last {
		tc.stopped = true
		if tc.retryTimer != nil {
			tc.retryTimer.Stop()
			tc.retryTimer = nil
		}
		if tc.conn != nil {
			_ = tc.conn.Close()
			tc.conn = nil
		}
	}
	tc.mu.Unlock()

	if last {
		tc.mgr.remove(tc)
	}
}

// connect dials, subscribes and starts the read loop. Callers must have set
// the connecting flag; it guarantees at most one live dial per topic.
func (tc *topicConn) connect() {
	conn, _, err := tc.mgr.dialer.Dial(tc.mgr.url, nil)

	tc.mu.Lock()
	if tc.stopped {
		tc.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return
	}

	if err != nil {
		tc.connecting = false
		tc.mgr.log.Warnf("Stream dial for %s failed: %v", tc.topic.key(), err)
		tc.scheduleReconnectLocked()
		tc.mu.Unlock()
		return
	}

	tc.conn = conn
	tc.connecting = false
	tc.attempt = 0

	sub := subscribeMsg{Type: "sub", Stream: tc.topic.Stream, PoolID: tc.topic.PoolID}
	if err = conn.WriteJSON(sub); err != nil {
		tc.mgr.log.Warnf("Stream subscribe for %s failed: %v", tc.topic.key(), err)
		tc.conn = nil
		_ = conn.Close()
		tc.scheduleReconnectLocked()
		tc.mu.Unlock()
		return
	}
	tc.mu.Unlock()

	tc.mgr.log.Infof("Stream connected for topic %s", tc.topic.key())
	go tc.readLoop(conn)
}

func (tc *topicConn) readLoop(conn *websocket.Conn) {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			tc.onClosed(conn)
			return
		}
		tc.fanOut(msg)
	}
}

// fanOut delivers one message verbatim to every currently-attached listener.
// Holding the lock makes detach take effect immediately, even for messages
// already in flight.
func (tc *topicConn) fanOut(msg []byte) {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	for _, fn := range tc.listeners {
		fn(msg)
	}
}

func (tc *topicConn) onClosed(conn *websocket.Conn) {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	if tc.conn == conn {
		tc.conn = nil
	}

	if tc.stopped || len(tc.listeners) == 0 {
		return
	}

	tc.scheduleReconnectLocked()
}

// scheduleReconnectLocked arms the backoff timer for the next attempt, or
// goes quiet once the ceiling is reached. Callers hold tc.mu.
func (tc *topicConn) scheduleReconnectLocked() {
	if tc.attempt >= tc.mgr.cfg.MaxAttempts {
		tc.mgr.log.Errorf("Stream retries for %s exhausted after %d attempts", tc.topic.key(), tc.attempt)
		return
	}

	delay := tc.reconnectDelay(tc.attempt)
	tc.attempt++
	metrics.StreamReconnects.Inc()
	tc.mgr.log.Infof("Stream for %s closed, reconnect in %s (attempt %d)", tc.topic.key(), delay, tc.attempt)

	tc.retryTimer = time.AfterFunc(delay, func() {
		tc.mu.Lock()
		tc.retryTimer = nil
		if tc.stopped || len(tc.listeners) == 0 || tc.conn != nil || tc.connecting {
			tc.mu.Unlock()
			return
		}
		tc.connecting = true
		tc.mu.Unlock()

		tc.connect()
	})
}

func (tc *topicConn) reconnectDelay(attempt int) time.Duration {
	return tc.bo.ForAttempt(float64(attempt))
}
