package model

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Room holds current membership only. Playback position and play/pause state
// are never stored server-side; a joining client catches up by asking a live
// peer via syncRequest.
type Room struct {
	ID      string            `json:"room_id"`
	Members map[string]Member `json:"members"`
}

type Member struct {
	ID string `json:"id"`
}

// VideoAsset is one playable file discovered by the catalog. The ID is a
// reversible encoding of RelativePath, so the streamer can resolve it back
// to a path without a side index.
type VideoAsset struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	RelativePath string `json:"relativePath"`
	StreamURL    string `json:"streamUrl"`
	CaptionsURL  string `json:"captionsUrl,omitempty"`
}

// Sync message types.
const (
	TypeLoadVideo    = "loadVideo"
	TypePlay         = "play"
	TypePause        = "pause"
	TypeSeek         = "seek"
	TypeTimeSync     = "timeSync"
	TypeSyncRequest  = "syncRequest"
	TypeSyncResponse = "syncResponse"
	TypeChat         = "chat"
)

var ErrInvalidMessage = errors.New("invalid sync message")

// SyncMessage is the wire format for all room traffic. Which optional fields
// are required depends on Type, see Validate.
type SyncMessage struct {
	Type               string  `json:"type"`
	RoomID             string  `json:"roomId"`
	SenderClientID     string  `json:"senderClientId"`
	SentAtEpochMs      int64   `json:"sentAtEpochMs"`
	CurrentTimeSeconds float64 `json:"currentTimeSeconds,omitempty"`
	Paused             bool    `json:"paused,omitempty"`
	AssetURL           string  `json:"assetUrl,omitempty"`
	Text               string  `json:"text,omitempty"`
}

// Validate checks the per-type required fields. The relay only validates
// enough to route; full validation is for agents and tests.
func (m *SyncMessage) Validate() error {
	if m.RoomID == "" || m.SenderClientID == "" || m.SentAtEpochMs == 0 {
		return fmt.Errorf("%w: missing routing fields", ErrInvalidMessage)
	}
	switch m.Type {
	case TypePlay, TypePause, TypeSeek, TypeTimeSync:
		if m.CurrentTimeSeconds < 0 {
			return fmt.Errorf("%w: negative currentTimeSeconds", ErrInvalidMessage)
		}
	case TypeLoadVideo, TypeSyncResponse:
		if m.AssetURL == "" {
			return fmt.Errorf("%w: %s requires assetUrl", ErrInvalidMessage, m.Type)
		}
		if m.CurrentTimeSeconds < 0 {
			return fmt.Errorf("%w: negative currentTimeSeconds", ErrInvalidMessage)
		}
	case TypeSyncRequest:
	case TypeChat:
		if m.Text == "" {
			return fmt.Errorf("%w: chat requires text", ErrInvalidMessage)
		}
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidMessage, m.Type)
	}
	return nil
}

// IsPlayback reports whether the message participates in playback-state
// reconciliation on the receiving side.
func (m *SyncMessage) IsPlayback() bool {
	switch m.Type {
	case TypePlay, TypePause, TypeSeek, TypeTimeSync, TypeLoadVideo, TypeSyncResponse:
		return true
	}
	return false
}

// Frame is one relayed websocket frame: the raw bytes as received plus the
// routing header parsed out of them. The relay fans out Raw verbatim so
// fields it does not understand survive end to end.
type Frame struct {
	Raw    []byte
	Type   string
	Sender string
}

// ParseFrame extracts the routing header. It fails on malformed JSON or a
// missing sender, which the receiver pump logs and drops.
func ParseFrame(raw []byte) (Frame, error) {
	var hdr struct {
		Type           string `json:"type"`
		SenderClientID string `json:"senderClientId"`
	}
	if err := json.Unmarshal(raw, &hdr); err != nil {
		return Frame{}, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}
	if hdr.SenderClientID == "" {
		return Frame{}, fmt.Errorf("%w: missing senderClientId", ErrInvalidMessage)
	}
	return Frame{Raw: raw, Type: hdr.Type, Sender: hdr.SenderClientID}, nil
}

// Outbound queue size per member. A member whose queue is full simply misses
// that delivery; the next heartbeat resynchronizes it.
const WireQueueSize = 32

type Wire struct {
	RX chan Frame
	TX chan Frame
}

func NewWire() Wire {
	return Wire{
		RX: make(chan Frame),
		TX: make(chan Frame, WireQueueSize),
	}
}
