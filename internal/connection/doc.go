// Package connection owns the upstream feed connection.
//
// Client is the transport: one WebSocket connection with raw frame and
// lifecycle delivery. Supervisor is the state machine driving it: connect,
// subscribe, heartbeat monitoring, and reconnection with exponential
// backoff. All connection state lives in the supervisor's single event-loop
// goroutine; timers and transport callbacks are funneled through it, so no
// handler ever runs concurrently with another.
package connection
