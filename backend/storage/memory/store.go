package memory

import (
	"errors"
	"sync"

	"github.com/fredp03/watchtogether/backend/model"
)

var (
	ErrRoomNotFound = errors.New("room is not found")
)

// MemStore tracks room membership. Rooms are created implicitly on first
// join, have no size limit, and vanish when their last member leaves. No
// playback state lives here.
type MemStore struct {
	mx *sync.Mutex
	db map[string]*model.Room
}

func NewMemStore() *MemStore {
	return &MemStore{
		mx: &sync.Mutex{},
		db: make(map[string]*model.Room),
	}
}

func (ms *MemStore) CreateOrJoinRoom(roomID string, clientID string) (*model.Room, error) {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	room, ok := ms.db[roomID]
	if !ok {
		room = &model.Room{
			ID:      roomID,
			Members: make(map[string]model.Member),
		}
		ms.db[roomID] = room
	}
	room.Members[clientID] = model.Member{ID: clientID}
	return room, nil
}

func (ms *MemStore) LeaveRoom(roomID string, clientID string) error {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	room, ok := ms.db[roomID]
	if !ok {
		return ErrRoomNotFound
	}
	delete(room.Members, clientID)
	if len(room.Members) == 0 {
		delete(ms.db, roomID)
	}
	return nil
}

func (ms *MemStore) GetRoom(roomID string) (*model.Room, error) {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	room, ok := ms.db[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}
	snapshot := &model.Room{
		ID:      room.ID,
		Members: make(map[string]model.Member, len(room.Members)),
	}
	for id, m := range room.Members {
		snapshot.Members[id] = m
	}
	return snapshot, nil
}
