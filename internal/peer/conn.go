// Package peer is the client side of the relay protocol.
package peer

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/netchess/pkg/protocol"
)

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	}
	return "disconnected"
}

var ErrNotConnected = errors.New("not connected")

type MessageCallback func(env protocol.Envelope)

type StateCallback func(state State)

type callbackEntry struct {
	id       int
	callback MessageCallback
}

type stateCallbackEntry struct {
	id       int
	callback StateCallback
}

type Option func(*Conn)

func WithLogger(l *zap.Logger) Option {
	return func(c *Conn) {
		if l != nil {
			c.log = l
		}
	}
}

func WithPingInterval(d time.Duration) Option { return func(c *Conn) { c.pingInterval = d } }

func WithWriteTimeout(d time.Duration) Option {
	return func(c *Conn) {
		if d > 0 {
			c.writeTimeout = d
		}
	}
}

func WithHeader(k, v string) Option {
	return func(c *Conn) {
		if strings.TrimSpace(k) != "" && strings.TrimSpace(v) != "" {
			c.header.Set(k, v)
		}
	}
}

// Conn is one websocket connection to the relay. A dropped connection is not
// redialled: the server discards the session on disconnect.
type Conn struct {
	url string
	log *zap.Logger

	connM sync.RWMutex
	conn  *websocket.Conn
	state State

	writeM sync.Mutex

	msgCbs   []callbackEntry
	stateCbs []stateCallbackEntry
	cbSeq    int
	cbM      sync.RWMutex

	pingInterval time.Duration
	writeTimeout time.Duration
	header       http.Header

	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	wg       sync.WaitGroup

	rootCtx    context.Context
	rootCancel context.CancelFunc
}

func Dial(url string, opts ...Option) *Conn {
	c := &Conn{
		url:          url,
		log:          zap.NewNop(),
		state:        StateDisconnected,
		pingInterval: 30 * time.Second,
		writeTimeout: 5 * time.Second,
		header:       http.Header{},
		stopCh:       make(chan struct{}),
		done:         make(chan struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Conn) Connect(ctx context.Context) error {
	c.connM.Lock()
	if c.state != StateDisconnected {
		c.connM.Unlock()
		return nil
	}
	c.state = StateConnecting
	c.connM.Unlock()
	c.notifyState(StateConnecting)

	c.rootCtx, c.rootCancel = context.WithCancel(context.Background())
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, c.url, &websocket.DialOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
		HTTPHeader:      c.header,
	})
	if err != nil {
		c.setState(StateDisconnected)
		c.rootCancel()
		return err
	}
	conn.SetReadLimit(1 << 20)

	c.connM.Lock()
	c.conn = conn
	c.connM.Unlock()
	c.setState(StateConnected)

	c.wg.Add(1)
	go c.listen(conn)
	if c.pingInterval > 0 {
		c.wg.Add(1)
		go c.pingLoop(conn)
	}
	return nil
}

// Done is closed when the read loop has ended.
func (c *Conn) Done() <-chan struct{} { return c.done }

func (c *Conn) State() State {
	c.connM.RLock()
	defer c.connM.RUnlock()
	return c.state
}

func (c *Conn) listen(conn *websocket.Conn) {
	defer c.wg.Done()
	defer close(c.done)
	for {
		var env protocol.Envelope
		if err := wsjson.Read(c.rootCtx, conn, &env); err != nil {
			if !c.isStopping() {
				c.log.Info("peer_read_end", zap.Error(err))
			}
			c.setState(StateClosed)
			_ = conn.Close(websocket.StatusGoingAway, "read end")
			return
		}
		if err := env.Check(); err != nil {
			c.log.Warn("peer_bad_message", zap.Error(err))
			continue
		}

		c.cbM.RLock()
		callbacks := make([]callbackEntry, len(c.msgCbs))
		copy(callbacks, c.msgCbs)
		c.cbM.RUnlock()
		for _, entry := range callbacks {
			if entry.callback != nil {
				entry.callback(env)
			}
		}
	}
}

func (c *Conn) pingLoop(conn *websocket.Conn) {
	defer c.wg.Done()
	t := time.NewTicker(c.pingInterval)
	defer t.Stop()
	failures := 0
	for {
		select {
		case <-c.stopCh:
			return
		case <-c.done:
			return
		case <-t.C:
			ctx, cancel := context.WithTimeout(c.rootCtx, 3*time.Second)
			err := conn.Ping(ctx)
			cancel()
			if err == nil {
				failures = 0
				continue
			}
			failures++
			if failures >= 2 {
				c.log.Warn("peer_ping_failed", zap.Error(err))
				_ = conn.Close(websocket.StatusGoingAway, "ping failure")
				return
			}
		}
	}
}

// Send writes one envelope. Concurrent callers are serialized.
func (c *Conn) Send(ctx context.Context, env protocol.Envelope) error {
	c.connM.RLock()
	conn := c.conn
	st := c.state
	c.connM.RUnlock()
	if conn == nil || st != StateConnected {
		return ErrNotConnected
	}
	c.writeM.Lock()
	defer c.writeM.Unlock()
	wctx, cancel := context.WithTimeout(ctx, c.writeTimeout)
	defer cancel()
	return wsjson.Write(wctx, conn, env)
}

// SendTyped encodes payload and sends it.
func (c *Conn) SendTyped(ctx context.Context, t protocol.Type, payload any) error {
	env, err := protocol.New(t, payload)
	if err != nil {
		return err
	}
	return c.Send(ctx, env)
}

func (c *Conn) OnMessage(cb MessageCallback) int {
	c.cbM.Lock()
	defer c.cbM.Unlock()
	c.cbSeq++
	c.msgCbs = append(c.msgCbs, callbackEntry{id: c.cbSeq, callback: cb})
	return c.cbSeq
}

func (c *Conn) RemoveMessageCallback(id int) {
	c.cbM.Lock()
	defer c.cbM.Unlock()
	for i, cb := range c.msgCbs {
		if cb.id == id {
			c.msgCbs = append(c.msgCbs[:i], c.msgCbs[i+1:]...)
			break
		}
	}
}

func (c *Conn) OnStateChange(cb StateCallback) int {
	c.cbM.Lock()
	defer c.cbM.Unlock()
	c.cbSeq++
	c.stateCbs = append(c.stateCbs, stateCallbackEntry{id: c.cbSeq, callback: cb})
	return c.cbSeq
}

func (c *Conn) RemoveStateCallback(id int) {
	c.cbM.Lock()
	defer c.cbM.Unlock()
	for i, cb := range c.stateCbs {
		if cb.id == id {
			c.stateCbs = append(c.stateCbs[:i], c.stateCbs[i+1:]...)
			break
		}
	}
}

func (c *Conn) setState(s State) {
	c.connM.Lock()
	if c.state == s {
		c.connM.Unlock()
		return
	}
	c.state = s
	c.connM.Unlock()
	c.notifyState(s)
}

func (c *Conn) notifyState(s State) {
	c.cbM.RLock()
	callbacks := make([]stateCallbackEntry, len(c.stateCbs))
	copy(callbacks, c.stateCbs)
	c.cbM.RUnlock()
	for _, entry := range callbacks {
		if entry.callback != nil {
			entry.callback(s)
		}
	}
}

// Close shuts the connection and waits for the loops to exit.
func (c *Conn) Close(ctx context.Context) error {
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.connM.RLock()
	conn := c.conn
	c.connM.RUnlock()
	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "close")
	}

	finished := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(finished)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-finished:
		if c.rootCancel != nil {
			c.rootCancel()
		}
		c.setState(StateClosed)
		return nil
	}
}

func (c *Conn) isStopping() bool {
	select {
	case <-c.stopCh:
		return true
	default:
		return false
	}
}
