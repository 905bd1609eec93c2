// internal/handlers/ws_codes.go
package handlers

import "github.com/coder/websocket"

// Custom WebSocket close codes used by the lobby handler.
const (
	BadSubprotocolError websocket.StatusCode = 3000 // Client connected without the bingo subprotocol.
	RateLimitedError    websocket.StatusCode = 3004 // Client sent requests faster than the configured rate.
)
