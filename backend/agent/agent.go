// Package agent implements the per-viewer playback synchronization logic:
// deciding when to emit protocol messages, reconciling inbound messages
// against the local player, and correcting drift between messages. It is
// decoupled from any rendering layer; the renderer implements Player and
// calls the OnLocal* hooks for user actions.
package agent

import (
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/fredp03/watchtogether/backend/model"
)

const (
	heartbeatInterval = 5 * time.Second
	driftInterval     = 2 * time.Second
	manualSyncTimeout = 3 * time.Second
	reconnectDelay    = 3 * time.Second
	suppressWindow    = 100 * time.Millisecond

	// Event-triggered corrections follow a discrete user action and should
	// feel authoritative, so they use a tighter tolerance than the periodic
	// drift corrector.
	eventToleranceSeconds = 0.2
	driftToleranceSeconds = 0.3
)

// Phase is the connection state of the agent.
type Phase int32

const (
	Disconnected Phase = iota
	Connecting
	Connected
)

// Player is the local media player as seen by the agent. Implementations
// must be safe to call from the agent's goroutines; mutating calls made by
// the agent may surface back through the OnLocal* hooks, which the agent
// suppresses during the echo window.
type Player interface {
	Position() float64
	Paused() bool
	Load(assetURL string)
	Play()
	Pause()
	Seek(t float64)
}

// reference is the last applied playback reference, used by the drift
// corrector to extrapolate the expected position between messages.
type reference struct {
	timeSeconds float64
	wallClockMs int64
	paused      bool
	valid       bool
}

type Agent struct {
	logger zerolog.Logger
	player Player
	onChat func(model.SyncMessage)

	roomID   string
	clientID string
	url      string

	mx            sync.Mutex
	phase         Phase
	assetURL      string
	hasStarted    bool
	suppressUntil time.Time
	manualSync    bool
	manualGen     uint64
	ref           reference

	out    chan model.SyncMessage
	closed chan struct{}
	once   sync.Once

	now func() time.Time
}

type Config struct {
	Logger    *zerolog.Logger
	ServerURL string // base websocket URL, e.g. ws://host:8888
	RoomID    string
	ClientID  string // generated when empty
	Player    Player
	OnChat    func(model.SyncMessage)
}

func New(cfg Config) *Agent {
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = uuid.NewString()
	}
	onChat := cfg.OnChat
	if onChat == nil {
		onChat = func(model.SyncMessage) {}
	}
	return &Agent{
		logger: cfg.Logger.With().
			Str("component", "sync-agent").
			Str("roomID", cfg.RoomID).
			Str("clientID", clientID).
			Logger(),
		player:   cfg.Player,
		onChat:   onChat,
		roomID:   cfg.RoomID,
		clientID: clientID,
		url:      cfg.ServerURL,
		phase:    Disconnected,
		out:      make(chan model.SyncMessage, model.WireQueueSize),
		closed:   make(chan struct{}),
		now:      time.Now,
	}
}

func (a *Agent) ClientID() string { return a.clientID }

func (a *Agent) Phase() Phase {
	a.mx.Lock()
	defer a.mx.Unlock()
	return a.phase
}

// HasStarted reports whether playback has begun since the last asset switch.
// Renderers use it to decide between the poster and the player surface.
func (a *Agent) HasStarted() bool {
	a.mx.Lock()
	defer a.mx.Unlock()
	return a.hasStarted
}

// Outgoing exposes the agent's emitted messages. The connection loop drains
// this; in-process tests read it directly.
func (a *Agent) Outgoing() <-chan model.SyncMessage { return a.out }

// Close tears the agent down: reconnects stop, pending timer callbacks
// become no-ops via the generation bumps.
func (a *Agent) Close() {
	a.once.Do(func() {
		a.mx.Lock()
		a.phase = Disconnected
		a.manualGen++
		a.manualSync = false
		a.mx.Unlock()
		close(a.closed)
	})
}

func (a *Agent) setPhase(p Phase) {
	a.mx.Lock()
	a.phase = p
	a.mx.Unlock()
}

// message builds an outgoing message stamped with the current player state.
func (a *Agent) message(msgType string) model.SyncMessage {
	return model.SyncMessage{
		Type:               msgType,
		RoomID:             a.roomID,
		SenderClientID:     a.clientID,
		SentAtEpochMs:      a.now().UnixMilli(),
		CurrentTimeSeconds: a.player.Position(),
		Paused:             a.player.Paused(),
	}
}

// emit queues a message for the connection writer. Best effort: when the
// queue is full the message is dropped, the next heartbeat or user action
// carries fresher state anyway.
func (a *Agent) emit(msg model.SyncMessage) {
	select {
	case a.out <- msg:
	default:
		a.logger.Debug().Str("type", msg.Type).Msg("outgoing queue full, message dropped")
	}
}

func (a *Agent) suppressed() bool {
	return a.now().Before(a.suppressUntil)
}

// OnLocalPlay emits a play message for a user-initiated play, unless the
// event is an echo of a state change the agent itself just applied.
func (a *Agent) OnLocalPlay() {
	a.mx.Lock()
	if a.suppressed() {
		a.mx.Unlock()
		return
	}
	a.hasStarted = true
	a.mx.Unlock()
	a.emit(a.message(model.TypePlay))
}

func (a *Agent) OnLocalPause() {
	a.mx.Lock()
	if a.suppressed() {
		a.mx.Unlock()
		return
	}
	a.mx.Unlock()
	a.emit(a.message(model.TypePause))
}

func (a *Agent) OnLocalSeek(t float64) {
	a.mx.Lock()
	if a.suppressed() {
		a.mx.Unlock()
		return
	}
	a.mx.Unlock()
	msg := a.message(model.TypeSeek)
	msg.CurrentTimeSeconds = t
	a.emit(msg)
}

// OnAssetSelected announces a locally chosen asset to the room.
func (a *Agent) OnAssetSelected(assetURL string) {
	a.mx.Lock()
	a.assetURL = assetURL
	a.hasStarted = false
	suppressedNow := a.suppressed()
	a.mx.Unlock()
	if suppressedNow {
		return
	}
	msg := a.message(model.TypeLoadVideo)
	msg.AssetURL = assetURL
	a.emit(msg)
}

// RequestSync emits a syncRequest unless one is already in flight. The
// in-flight flag clears on syncResponse or silently after the timeout; the
// generation guard keeps a stale timer from clearing a newer request.
func (a *Agent) RequestSync() bool {
	a.mx.Lock()
	if a.manualSync {
		a.mx.Unlock()
		return false
	}
	a.manualSync = true
	a.manualGen++
	gen := a.manualGen
	a.mx.Unlock()

	time.AfterFunc(manualSyncTimeout, func() {
		a.mx.Lock()
		if a.manualGen == gen {
			a.manualSync = false
		}
		a.mx.Unlock()
	})

	a.emit(model.SyncMessage{
		Type:           model.TypeSyncRequest,
		RoomID:         a.roomID,
		SenderClientID: a.clientID,
		SentAtEpochMs:  a.now().UnixMilli(),
	})
	return true
}

// OnInboundMessage applies one relayed message. Self-originated messages are
// always ignored, regardless of any suppression window.
func (a *Agent) OnInboundMessage(msg model.SyncMessage) {
	if msg.SenderClientID == a.clientID {
		return
	}

	switch msg.Type {
	case model.TypeChat:
		a.onChat(msg)
		return
	case model.TypeSyncRequest:
		a.answerSyncRequest()
		return
	case model.TypeLoadVideo, model.TypeSyncResponse:
		a.applyAssetSwitch(msg)
	}

	if msg.IsPlayback() {
		a.reconcile(msg)
	}
}

// answerSyncRequest replies directly with current state. The relay keeps no
// playback state, so a live peer is the only source of truth for a joiner.
func (a *Agent) answerSyncRequest() {
	a.mx.Lock()
	assetURL := a.assetURL
	a.mx.Unlock()
	if assetURL == "" {
		return
	}
	msg := a.message(model.TypeSyncResponse)
	msg.AssetURL = assetURL
	a.emit(msg)
}

func (a *Agent) applyAssetSwitch(msg model.SyncMessage) {
	a.mx.Lock()
	switchAsset := msg.AssetURL != "" && msg.AssetURL != a.assetURL
	if switchAsset {
		a.assetURL = msg.AssetURL
		a.hasStarted = false
		// Asset changed: outstanding manual-sync timers for the old asset
		// must not fire into the new one.
		a.manualGen++
	}
	if msg.Type == model.TypeSyncResponse {
		a.manualSync = false
		a.manualGen++
	}
	a.mx.Unlock()

	if switchAsset {
		a.player.Load(msg.AssetURL)
	}
}

// reconcile applies network-delay-compensated position and paused state from
// a playback message, then opens the echo-suppression window so the player
// events this causes do not loop back out.
func (a *Agent) reconcile(msg model.SyncMessage) {
	nowMs := a.now().UnixMilli()
	delaySeconds := float64(nowMs-msg.SentAtEpochMs) / 1000.0
	if delaySeconds < 0 {
		// Peer clock ahead of ours; extrapolating backwards would overshoot.
		delaySeconds = 0
	}
	// Assumes symmetric latency: one-way delay is half the elapsed transit
	// time. Documented protocol behavior, kept as-is.
	adjusted := msg.CurrentTimeSeconds + delaySeconds*0.5

	a.mx.Lock()
	a.suppressUntil = a.now().Add(suppressWindow)
	a.mx.Unlock()

	if math.Abs(a.player.Position()-adjusted) > eventToleranceSeconds {
		a.player.Seek(adjusted)
	}

	targetPaused := msg.Paused
	switch msg.Type {
	case model.TypePlay:
		targetPaused = false
	case model.TypePause:
		targetPaused = true
	}

	if !targetPaused && a.player.Paused() {
		a.player.Play()
	} else if targetPaused && !a.player.Paused() {
		a.player.Pause()
	}

	a.mx.Lock()
	if !targetPaused {
		a.hasStarted = true
	}
	a.ref = reference{
		timeSeconds: adjusted,
		wallClockMs: nowMs,
		paused:      targetPaused,
		valid:       true,
	}
	a.mx.Unlock()
}

// heartbeat emits the periodic timeSync that keeps idle peers converged.
func (a *Agent) heartbeat() {
	a.mx.Lock()
	skip := a.phase != Connected || a.suppressed()
	a.mx.Unlock()
	if skip || a.player.Paused() {
		return
	}
	a.emit(a.message(model.TypeTimeSync))
}

// driftCheck snaps the player back onto the extrapolated reference timeline
// during uninterrupted playback. Coarser tolerance than reconcile: this
// corrects clock drift, not a discrete user action.
func (a *Agent) driftCheck() {
	a.mx.Lock()
	ref := a.ref
	connected := a.phase == Connected
	a.mx.Unlock()

	if !connected || !ref.valid || ref.paused || a.player.Paused() {
		return
	}

	nowMs := a.now().UnixMilli()
	expected := ref.timeSeconds + float64(nowMs-ref.wallClockMs)/1000.0
	if math.Abs(a.player.Position()-expected) > driftToleranceSeconds {
		a.mx.Lock()
		a.suppressUntil = a.now().Add(suppressWindow)
		a.mx.Unlock()
		a.player.Seek(expected)
	}
}
