// internal/handlers/ws_codes.go
package handlers

import "github.com/coder/websocket"

// Custom WebSocket close codes used by the standings feed.
const (
	InvalidSessionIDError  websocket.StatusCode = 3003 // Target session in the WS URL does not exist.
	SubscriptionEndedError websocket.StatusCode = 3004 // The server dropped the subscription.
)
