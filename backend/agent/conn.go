package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"github.com/fredp03/watchtogether/backend/model"
)

const defaultWriteDeadline = 5 * time.Second

var errConnectionLost = errors.New("connection lost")

// Run connects to the relay and keeps the agent synchronized until ctx is
// canceled or Close is called. An unexpected close reconnects after a fixed
// delay, retried indefinitely; a deliberate shutdown suppresses reconnect.
func (a *Agent) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-a.closed:
			cancel()
		case <-ctx.Done():
		}
	}()

	go a.timerLoop(ctx)

	bo := backoff.WithContext(backoff.NewConstantBackOff(reconnectDelay), ctx)
	_ = backoff.Retry(func() error {
		return a.connectAndServe(ctx)
	}, bo)
	a.setPhase(Disconnected)
	a.logger.Info().Msg("agent stopped")
}

// timerLoop drives the heartbeat and drift corrector on the agent's single
// sequential timeline.
func (a *Agent) timerLoop(ctx context.Context) {
	heartbeatTicker := time.NewTicker(heartbeatInterval)
	driftTicker := time.NewTicker(driftInterval)
	defer func() {
		heartbeatTicker.Stop()
		driftTicker.Stop()
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeatTicker.C:
			a.heartbeat()
		case <-driftTicker.C:
			a.driftCheck()
		}
	}
}

// connectAndServe runs one connection lifetime. It returns nil only when the
// agent is shutting down, so the backoff retry loop reconnects forever
// otherwise.
func (a *Agent) connectAndServe(ctx context.Context) error {
	a.setPhase(Connecting)

	u := fmt.Sprintf("%s/sync/room/%s/client/%s", a.url, a.roomID, a.clientID)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		a.logger.Warn().Err(err).Msg("dial failed, will retry")
		return errors.Join(errConnectionLost, err)
	}
	a.setPhase(Connected)
	a.logger.Info().Str("url", u).Msg("connected")

	connCtx, connCancel := context.WithCancel(ctx)
	go func() {
		a.writePump(connCtx, conn)
		_ = conn.Close()
	}()

	err = a.readPump(conn)
	connCancel()
	_ = conn.Close()

	if ctx.Err() != nil {
		return nil
	}
	a.setPhase(Connecting)
	a.logger.Warn().Err(err).Msg("connection lost, reconnecting")
	return errConnectionLost
}

func (a *Agent) writePump(ctx context.Context, conn *websocket.Conn) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-a.out:
			b, err := json.Marshal(&msg)
			if err != nil {
				a.logger.Error().Err(err).Msg("failed to marshal outgoing message")
				continue
			}
			if err = conn.SetWriteDeadline(time.Now().Add(defaultWriteDeadline)); err != nil {
				a.logger.Error().Err(err).Msg("failed to set write deadline")
				return
			}
			if err = conn.WriteMessage(websocket.TextMessage, b); err != nil {
				// No per-message retry; reconnect-and-resume handles it.
				a.logger.Warn().Err(err).Msg("write failed")
				return
			}
		}
	}
}

func (a *Agent) readPump(conn *websocket.Conn) error {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var msg model.SyncMessage
		if err = json.Unmarshal(raw, &msg); err != nil {
			a.logger.Warn().Err(err).Msg("dropping malformed inbound message")
			continue
		}
		a.OnInboundMessage(msg)
	}
}
