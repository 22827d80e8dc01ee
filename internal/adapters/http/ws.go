package httpadapter

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"termslens/internal/messaging"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
	wsMaxMessage = 4 << 20
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,
	// surfaces run inside browser extensions with their own origins
	CheckOrigin: func(*http.Request) bool { return true },
}

// wsConn serializes writes; gorilla connections allow one writer at a time.
type wsConn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *wsConn) send(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return c.ws.WriteJSON(v)
}

func (c *wsConn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait))
}

// serveWS reads request envelopes and writes each response as soon as it
// resolves, so a slow scan does not hold up a quick question.
func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	conn := &wsConn{ws: ws}
	log := s.log.WithField("remote", r.RemoteAddr)
	log.Debug("websocket client connected")

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
		_ = ws.Close()
		log.Debug("websocket client disconnected")
	}()

	ws.SetReadLimit(wsMaxMessage)
	_ = ws.SetReadDeadline(time.Now().Add(wsPongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	wg.Add(1)
	go func() {
		defer wg.Done()
		t := time.NewTicker(wsPingPeriod)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if err := conn.ping(); err != nil {
					return
				}
			}
		}
	}()

	for {
		var req messaging.Request
		if err := ws.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.WithError(err).Debug("websocket read failed")
			}
			return
		}
		if err := checkEnvelope(req); err != nil {
			if err := conn.send(messaging.Response{ID: req.ID, Error: err.Error()}); err != nil {
				return
			}
			continue
		}
		wg.Add(1)
		go func(req messaging.Request) {
			defer wg.Done()
			resp := s.bus.Dispatch(ctx, req)
			if err := conn.send(resp); err != nil {
				log.WithFields(logrus.Fields{"id": resp.ID, "action": req.Action}).WithError(err).Debug("websocket write failed")
			}
		}(req)
	}
}
