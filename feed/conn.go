// Package feed maintains the streaming price connections. Each exchange gets
// its own reconnect policy; both are implemented by Conn and documented on
// the feed constructors.
package feed

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"premium-watch-go/infrastructure/logger"
	"premium-watch-go/monitor"
)

// State is the connection lifecycle state. Owned exclusively by the Conn's
// run loop; everyone else only observes it.
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosedRetrying
	StateClosedGiveUp
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosedRetrying:
		return "retrying"
	case StateClosedGiveUp:
		return "gave_up"
	default:
		return "unknown"
	}
}

// Policy controls reconnect behavior after a dial failure or dropped
// connection.
//
// With Exponential set, the delay starts at InitialDelay and doubles per
// consecutive failure up to MaxDelay. Otherwise the delay is fixed at
// InitialDelay. MaxAttempts > 0 sets a ceiling of consecutive failures after
// which the Conn gives up terminally; 0 retries forever. A successful open
// resets both the counter and the delay.
type Policy struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Exponential  bool
	MaxAttempts  int
}

func (p Policy) next(cur time.Duration) time.Duration {
	if !p.Exponential {
		return p.InitialDelay
	}
	next := cur * 2
	if p.MaxDelay > 0 && next > p.MaxDelay {
		next = p.MaxDelay
	}
	return next
}

// WSConn is the subset of *websocket.Conn the feed layer uses; tests inject
// fakes through DialFunc.
type WSConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// DialFunc opens one websocket connection.
type DialFunc func(ctx context.Context, url string) (WSConn, error)

// GorillaDial dials with the default gorilla dialer.
func GorillaDial(ctx context.Context, url string) (WSConn, error) {
	c, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return c, nil
}

const readTimeout = 60 * time.Second

// ConnConfig assembles a Conn.
type ConnConfig struct {
	Name      string // feed label for logs/metrics
	URL       string
	Policy    Policy
	Dial      DialFunc           // nil means GorillaDial
	OnOpen    func(WSConn) error // subscription handshake, sent right after dial
	OnMessage func(messageType int, data []byte)
	OnGiveUp  func(error) // terminal signal, invoked at most once
	Log       *logger.Logger
	Mon       *monitor.Monitor
}

// Conn is one self-healing websocket connection. Start launches the run
// loop; Close cancels it, closes the socket and any pending reconnect timer,
// and guarantees no further OnMessage calls.
type Conn struct {
	cfg ConnConfig

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	ws    WSConn
	state atomic.Int32

	giveUpOnce sync.Once
	done       chan struct{}
}

// NewConn builds a Conn; call Start to connect.
func NewConn(cfg ConnConfig) *Conn {
	if cfg.Dial == nil {
		cfg.Dial = GorillaDial
	}
	if cfg.Log == nil {
		cfg.Log = logger.Nop()
	}
	if cfg.Policy.InitialDelay <= 0 {
		cfg.Policy.InitialDelay = time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Conn{
		cfg:    cfg,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Start launches the connection loop in a background goroutine.
func (c *Conn) Start() {
	go c.run()
}

// Close tears the connection down. Safe to call more than once. A closed
// Conn is not restartable; build a fresh one.
func (c *Conn) Close() {
	c.cancel()
	c.mu.Lock()
	if c.ws != nil {
		_ = c.ws.Close()
		c.ws = nil
	}
	c.mu.Unlock()
}

// Done is closed when the run loop has exited, either by Close or give-up.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// State returns the current lifecycle state.
func (c *Conn) State() State {
	return State(c.state.Load())
}

func (c *Conn) setState(s State) {
	c.state.Store(int32(s))
	c.cfg.Mon.UpdateFeedState(c.cfg.Name, int(s))
}

func (c *Conn) run() {
	defer close(c.done)
	attempts := 0
	delay := c.cfg.Policy.InitialDelay
	for {
		if c.ctx.Err() != nil {
			return
		}
		if attempts == 0 {
			c.setState(StateConnecting)
		}
		ws, err := c.cfg.Dial(c.ctx, c.cfg.URL)
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			if !c.fail(&attempts, &delay, err) {
				return
			}
			continue
		}

		c.mu.Lock()
		if c.ctx.Err() != nil {
			c.mu.Unlock()
			_ = ws.Close()
			return
		}
		c.ws = ws
		c.mu.Unlock()

		if c.cfg.OnOpen != nil {
			if err := c.cfg.OnOpen(ws); err != nil {
				c.cfg.Log.Warn("feed handshake failed",
					zap.String("feed", c.cfg.Name), zap.Error(err))
				c.dropConn(ws)
				if !c.fail(&attempts, &delay, err) {
					return
				}
				continue
			}
		}

		c.setState(StateOpen)
		attempts = 0
		delay = c.cfg.Policy.InitialDelay
		c.cfg.Mon.RecordWSConnect(c.cfg.Name)
		c.cfg.Log.Info("feed connected", zap.String("feed", c.cfg.Name))

		readErr := c.readLoop(ws)
		c.dropConn(ws)
		c.cfg.Mon.RecordWSDisconnect(c.cfg.Name)
		if c.ctx.Err() != nil {
			return
		}
		c.cfg.Log.Warn("feed disconnected",
			zap.String("feed", c.cfg.Name), zap.Error(readErr))
		if !c.fail(&attempts, &delay, readErr) {
			return
		}
	}
}

// fail records one consecutive failure. It either schedules the next attempt
// (sleeping the policy delay, true) or gives up terminally (false).
func (c *Conn) fail(attempts *int, delay *time.Duration, cause error) bool {
	*attempts++
	if c.cfg.Policy.MaxAttempts > 0 && *attempts >= c.cfg.Policy.MaxAttempts {
		c.setState(StateClosedGiveUp)
		c.cfg.Mon.RecordWSGiveUp(c.cfg.Name)
		c.cfg.Log.Error("feed giving up after repeated failures",
			zap.String("feed", c.cfg.Name), zap.Int("attempts", *attempts), zap.Error(cause))
		c.giveUpOnce.Do(func() {
			if c.cfg.OnGiveUp != nil {
				c.cfg.OnGiveUp(cause)
			}
		})
		return false
	}
	c.setState(StateClosedRetrying)
	c.cfg.Log.Info("feed reconnect scheduled",
		zap.String("feed", c.cfg.Name), zap.Int("attempt", *attempts),
		zap.Duration("delay", *delay))
	select {
	case <-c.ctx.Done():
		return false
	case <-time.After(*delay):
	}
	*delay = c.cfg.Policy.next(*delay)
	return true
}

func (c *Conn) readLoop(ws WSConn) error {
	_ = ws.SetReadDeadline(time.Now().Add(readTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(readTimeout))
	})
	for {
		msgType, msg, err := ws.ReadMessage()
		if err != nil {
			return err
		}
		_ = ws.SetReadDeadline(time.Now().Add(readTimeout))
		if c.ctx.Err() != nil {
			return c.ctx.Err()
		}
		if c.cfg.OnMessage != nil {
			c.cfg.OnMessage(msgType, msg)
		}
	}
}

func (c *Conn) dropConn(ws WSConn) {
	c.mu.Lock()
	if c.ws == ws {
		c.ws = nil
	}
	c.mu.Unlock()
	_ = ws.Close()
}
