package api

import (
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/core-tools/hsu-desk/pkg/logging"
	"github.com/core-tools/hsu-desk/pkg/outputsink"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024
)

// tailLogs streams the unit's history followed by its live records
func (a *API) tailLogs(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if _, err := a.contract.Unit(r.Context(), name); err != nil {
		a.respondError(w, err)
		return
	}

	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response
		a.logger.Warnf("Websocket upgrade failed, unit: %s, error: %v", name, err)
		return
	}

	// Subscribe before reading history so no record falls in between
	events, cancel := a.tail.Subscribe(name)
	history := a.tail.Lines(name)

	client := &tailClient{
		conn:    conn,
		events:  events,
		cancel:  cancel,
		history: history,
		logger:  logging.WithPrefix(a.logger, logging.UnitPrefix(name)),
	}
	a.addClient(client)
	defer a.removeClient(client)

	client.run()
}

type tailClient struct {
	conn    *websocket.Conn
	events  <-chan outputsink.Event
	cancel  func()
	history []outputsink.Event
	logger  logging.Logger

	closeOnce sync.Once
}

func (c *tailClient) run() {
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.writePump()
	}()
	c.readPump()
	c.cancel()
	<-done
}

func (c *tailClient) close() {
	c.closeOnce.Do(func() {
		_ = c.conn.Close()
	})
}

// readPump only watches for the peer going away and answers pongs
func (c *tailClient) readPump() {
	defer c.close()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debugf("Tail connection closed: %v", err)
			}
			return
		}
	}
}

func (c *tailClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	var lastSeq uint64
	for _, ev := range c.history {
		if !c.write(ev) {
			return
		}
		lastSeq = ev.Seq
	}

	for {
		select {
		case ev, ok := <-c.events:
			if !ok {
				_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if ev.Seq <= lastSeq {
				continue
			}
			if !c.write(ev) {
				return
			}
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *tailClient) write(ev outputsink.Event) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return false
	}
	if err := c.conn.WriteJSON(ev); err != nil {
		c.logger.Debugf("Failed to write tail event: %v", err)
		return false
	}
	return true
}

// checkLocalOrigin accepts non-browser clients and pages served from this
// host or the loopback interface
func checkLocalOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	return origin == "" || isLocalURL(origin, r.Host)
}

// checkLocalReferer applies the same rule to the Referer header, which
// browsers still send on requests that omit Origin
func checkLocalReferer(r *http.Request) bool {
	referer := r.Header.Get("Referer")
	return referer == "" || isLocalURL(referer, r.Host)
}

func isLocalURL(raw, requestHost string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if u.Host == requestHost {
		return true
	}
	host := u.Hostname()
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
