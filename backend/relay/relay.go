package relay

import (
	"context"
	"sync"

	"github.com/fredp03/watchtogether/backend/metrics"
	"github.com/fredp03/watchtogether/backend/model"
	"github.com/rs/zerolog"
)

// Relay fans every inbound frame out to the other members of the same room.
// It holds no playback state: rooms here are just clientID→wire maps, and a
// frame that cannot be delivered to one member is dropped for that member
// only. The next heartbeat or user action resynchronizes a client that
// missed a delivery.
type Relay struct {
	logger zerolog.Logger
	mx     *sync.RWMutex
	rooms  map[string]map[string]model.Wire
}

func New(logger *zerolog.Logger) *Relay {
	return &Relay{
		logger: logger.With().Str("component", "relay").Logger(),
		mx:     &sync.RWMutex{},
		rooms:  make(map[string]map[string]model.Wire),
	}
}

// Connect registers a member wire and starts pumping its inbound frames to
// the rest of the room until ctx is canceled.
func (rl *Relay) Connect(ctx context.Context, roomID, clientID string, wire model.Wire) error {
	rl.mx.Lock()
	room, ok := rl.rooms[roomID]
	if !ok {
		room = make(map[string]model.Wire)
	}
	room[clientID] = wire
	rl.rooms[roomID] = room
	rl.mx.Unlock()

	rl.logger.Debug().
		Str("roomID", roomID).
		Str("clientID", clientID).
		Msg("member connected")

	go rl.pump(ctx, roomID, wire.RX)
	return nil
}

// Disconnect removes a member wire. Frames already queued on other members'
// wires are unaffected.
func (rl *Relay) Disconnect(roomID, clientID string) error {
	rl.mx.Lock()
	if room, ok := rl.rooms[roomID]; ok {
		delete(room, clientID)
		if len(room) == 0 {
			delete(rl.rooms, roomID)
		}
	}
	rl.mx.Unlock()

	rl.logger.Debug().
		Str("roomID", roomID).
		Str("clientID", clientID).
		Msg("member disconnected")
	return nil
}

func (rl *Relay) pump(ctx context.Context, roomID string, rx <-chan model.Frame) {
pumpLoop:
	for {
		select {
		case <-ctx.Done():
			break pumpLoop
		case frame, ok := <-rx:
			if !ok {
				break pumpLoop
			}
			rl.Forward(roomID, frame)
		}
	}
}

// Forward delivers frame to every room member except its sender. Delivery is
// best-effort: a full member queue drops that single delivery silently.
func (rl *Relay) Forward(roomID string, frame model.Frame) {
	rl.mx.RLock()
	room := rl.rooms[roomID]
	wires := make(map[string]model.Wire, len(room))
	for id, w := range room {
		wires[id] = w
	}
	rl.mx.RUnlock()

	var sent int
	for clientID, wire := range wires {
		if clientID == frame.Sender {
			continue
		}
		select {
		case wire.TX <- frame:
			sent++
		default:
			metrics.MessagesDropped.Inc()
			rl.logger.Debug().
				Str("roomID", roomID).
				Str("clientID", clientID).
				Str("type", frame.Type).
				Msg("member queue full, delivery dropped")
		}
	}
	if sent > 0 {
		metrics.MessagesRelayed.WithLabelValues(frame.Type).Add(float64(sent))
	}
}
