package gateway

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/soyeahso/gaia/internal/logging"
)

var errConsoleClosed = errors.New("console connection closed")

const writeWait = 10 * time.Second

// console is one authenticated operator connection. Writes are serialized;
// reads happen only on the connection's read loop.
type console struct {
	id   string
	info ClientInfo
	conn *websocket.Conn

	mu     sync.Mutex
	closed bool
}

func newConsole(conn *websocket.Conn, info ClientInfo) *console {
	return &console{id: uuid.NewString(), info: info, conn: conn}
}

func (c *console) write(f Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errConsoleClosed
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(f)
}

func (c *console) reply(id string, payload any) error {
	f, err := NewResponse(id, payload)
	if err != nil {
		return err
	}
	return c.write(f)
}

func (c *console) fail(id, code, message string) error {
	return c.write(NewErrorResponse(id, ErrorShape{Code: code, Message: message}))
}

func (c *console) next() (Frame, error) {
	var f Frame
	err := c.conn.ReadJSON(&f)
	return f, err
}

func (c *console) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		_ = c.conn.Close()
	}
}

// consoles is the set of live console connections.
type consoles struct {
	mu  sync.RWMutex
	all map[string]*console
	log *logging.Logger
}

func newConsoles(log *logging.Logger) *consoles {
	return &consoles{all: map[string]*console{}, log: log}
}

func (cs *consoles) add(c *console) {
	cs.mu.Lock()
	cs.all[c.id] = c
	cs.mu.Unlock()
	cs.log.Info().Str("connId", c.id).Str("console", c.info.ID).Msg("console connected")
}

func (cs *consoles) remove(c *console) {
	cs.mu.Lock()
	_, live := cs.all[c.id]
	delete(cs.all, c.id)
	cs.mu.Unlock()
	c.close()
	if live {
		cs.log.Info().Str("connId", c.id).Msg("console disconnected")
	}
}

// Count is the number of live connections.
func (cs *consoles) Count() int {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return len(cs.all)
}

func (cs *consoles) snapshot() []*console {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	out := make([]*console, 0, len(cs.all))
	for _, c := range cs.all {
		out = append(out, c)
	}
	return out
}

// broadcast encodes one event frame and writes it to every console. A
// console whose write fails is left for its read loop to drop.
func (cs *consoles) broadcast(event string, payload any, seq int64) {
	f, err := NewEvent(event, payload, seq)
	if err != nil {
		cs.log.Warn().Err(err).Str("event", event).Msg("encoding event failed")
		return
	}
	for _, c := range cs.snapshot() {
		if err := c.write(f); err != nil {
			cs.log.Debug().Err(err).Str("connId", c.id).Msg("event not delivered")
		}
	}
}

func (cs *consoles) closeAll() {
	for _, c := range cs.snapshot() {
		cs.remove(c)
	}
}
