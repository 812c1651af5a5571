// Package signal is the websocket transport adapter: it upgrades
// connections, runs the read/write pumps and dispatches envelopes into the
// coordinator. No business logic lives here.
package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/avelin/oracle/internal/app"
	"github.com/avelin/oracle/internal/config"
)

var ErrBackpressure = errors.New("backpressure")

type Controller struct {
	Coord   *app.Coordinator
	cfg     *config.Config
	limiter *RateLimiter
}

func NewController(coord *app.Coordinator, cfg *config.Config) *Controller {
	return &Controller{
		Coord:   coord,
		cfg:     cfg,
		limiter: NewRateLimiter(cfg.Signal.RateLimit, cfg.Signal.RateInterval),
	}
}

// WsConn wraps one websocket connection with a buffered outbound channel.
// TrySend never blocks: a full buffer drops the frame and reports
// backpressure instead of stalling the sender.
type WsConn struct {
	conn *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	closed bool
	userID string
}

func (c *WsConn) TrySend(data []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- data:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

func (c *WsConn) setUserID(uid string) {
	c.mu.Lock()
	c.userID = uid
	c.mu.Unlock()
}

func (c *WsConn) UserID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (ctl *Controller) HandleSignal(ctx context.Context, c *gin.Context) {
	connID := uuid.NewString()
	log.Info().Str("module", "signal").Str("conn", connID).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Msg("ws upgrade")
		return
	}
	ws.SetReadLimit(ctl.cfg.ReadLimit)

	conn := &WsConn{
		conn: ws,
		send: make(chan []byte, 32),
	}
	ctl.Coord.Tracker.Register(connID, conn)

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, cancel, connID, conn)
}
