package service

import (
	"context"
	"errors"

	"github.com/fredp03/watchtogether/backend/model"
	"github.com/rs/zerolog"
)

var (
	ErrJoin       = errors.New("unable to join room")
	ErrGet        = errors.New("unable to get room")
	ErrConnect    = errors.New("unable to connect")
	ErrDisconnect = errors.New("unable to disconnect")
)

type (
	RoomStore interface {
		CreateOrJoinRoom(roomID string, clientID string) (*model.Room, error)
		LeaveRoom(roomID string, clientID string) error
		GetRoom(roomID string) (*model.Room, error)
	}

	Relay interface {
		Connect(ctx context.Context, roomID string, clientID string, wire model.Wire) error
		Disconnect(roomID string, clientID string) error
	}

	Service struct {
		store  RoomStore
		relay  Relay
		logger zerolog.Logger
	}

	Config struct {
		RoomStore RoomStore
		Relay     Relay
		Logger    *zerolog.Logger
	}
)

func NewService(cfg Config) *Service {
	return &Service{
		store:  cfg.RoomStore,
		relay:  cfg.Relay,
		logger: cfg.Logger.With().Str("component", "service").Logger(),
	}
}

// CreateRelaySession joins (creating if needed) the room and attaches the
// wire to the relay. Any holder of the room id may join; the clientID is the
// only identity this protocol has. Peers are not notified of the join — a
// new member announces itself, if it wants to, with a syncRequest.
func (svc *Service) CreateRelaySession(ctx context.Context, roomID, clientID string, wire model.Wire) error {
	if _, err := svc.store.CreateOrJoinRoom(roomID, clientID); err != nil {
		return errors.Join(ErrJoin, err)
	}
	if err := svc.relay.Connect(ctx, roomID, clientID, wire); err != nil {
		return errors.Join(ErrConnect, err)
	}
	svc.logger.Debug().
		Str("clientID", clientID).
		Str("roomID", roomID).
		Msg("relay session connected")
	return nil
}

// DeleteRelaySession detaches the wire and removes the member from the room.
// There is no leave event on the wire; stale peers discover absence only by
// the missing heartbeats.
func (svc *Service) DeleteRelaySession(_ context.Context, roomID, clientID string) error {
	err := svc.relay.Disconnect(roomID, clientID)
	if err != nil {
		return errors.Join(ErrDisconnect, err)
	}
	if err = svc.store.LeaveRoom(roomID, clientID); err != nil {
		return errors.Join(ErrDisconnect, err)
	}
	svc.logger.Debug().
		Str("clientID", clientID).
		Str("roomID", roomID).
		Msg("relay session deleted")
	return nil
}

// GetRoom returns the membership snapshot for the presence endpoint.
func (svc *Service) GetRoom(roomID string) (*model.Room, error) {
	room, err := svc.store.GetRoom(roomID)
	if err != nil {
		return nil, errors.Join(ErrGet, err)
	}
	return room, nil
}
