// internal/handlers/lobby_ws.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/jason-s-yu/bingo/internal/middleware"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Subprotocol is the websocket subprotocol clients must request.
const Subprotocol = "bingo"

const (
	pingInterval = 30 * time.Second
	writeTimeout = 5 * time.Second
)

// WSOptions tunes the per-connection websocket behaviour.
type WSOptions struct {
	// OriginPatterns is passed to websocket.Accept. Empty means same-origin only.
	OriginPatterns []string
	SendBuffer     int
	// RateLimit is requests per second per connection; zero disables limiting.
	RateLimit float64
	RateBurst int
}

// LobbyWSHandler upgrades a request to a websocket and runs one session over it.
func LobbyWSHandler(logger *logrus.Logger, gw *Gateway, opts WSOptions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{Subprotocol},
			OriginPatterns: opts.OriginPatterns,
		})
		if err != nil {
			logger.WithError(err).Warn("websocket accept error")
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler finished")

		if c.Subprotocol() != Subprotocol {
			c.Close(BadSubprotocolError, "client must speak the bingo subprotocol")
			return
		}

		conn := NewConn(logger, opts.SendBuffer)
		middleware.LogWebSocketConnect(logger, r.RemoteAddr, r.URL.Path)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		writeDone := make(chan struct{})
		go func() {
			writePump(ctx, c, conn)
			// Nothing drains the outbox past this point.
			conn.Close()
			cancel()
			close(writeDone)
		}()

		var limiter *rate.Limiter
		if opts.RateLimit > 0 {
			limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), opts.RateBurst)
		}
		readErr := readPump(ctx, c, gw, conn, limiter)

		gw.Disconnect(conn)
		cancel()
		<-writeDone

		middleware.LogWebSocketDisconnect(logger, r.RemoteAddr, r.URL.Path, readErr)
		if errors.Is(readErr, errRateLimited) {
			c.Close(RateLimitedError, "too many requests")
			return
		}
		c.Close(websocket.StatusNormalClosure, "")
	}
}

var errRateLimited = errors.New("rate limit exceeded")

// readPump feeds incoming frames to the gateway until the connection fails or closes.
// A normal close returns nil.
func readPump(ctx context.Context, c *websocket.Conn, gw *Gateway, conn *Conn, limiter *rate.Limiter) error {
	for {
		typ, msg, err := c.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return nil
			}
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		if limiter != nil && !limiter.Allow() {
			conn.logger.Warn("closing connection over rate limit")
			return errRateLimited
		}

		if typ != websocket.MessageText {
			conn.WriteError("only text frames are supported")
			continue
		}
		gw.Dispatch(conn, msg)
	}
}

// writePump drains the connection's outbox onto the socket and keeps it alive with pings.
func writePump(ctx context.Context, c *websocket.Conn, conn *Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flush(c, conn)
			return
		case f := <-conn.OutChan:
			if err := writeFrame(ctx, c, f); err != nil {
				conn.logger.WithError(err).Warn("write failed")
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.Ping(pingCtx)
			cancel()
			if err != nil {
				conn.logger.WithError(err).Debug("ping failed")
				return
			}
		}
	}
}

// flush writes whatever is still queued, such as the ack for a final leaveLobby.
func flush(c *websocket.Conn, conn *Conn) {
	for {
		select {
		case f := <-conn.OutChan:
			if err := writeFrame(context.Background(), c, f); err != nil {
				return
			}
		default:
			return
		}
	}
}

func writeFrame(ctx context.Context, c *websocket.Conn, f Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return c.Write(writeCtx, websocket.MessageText, data)
}
