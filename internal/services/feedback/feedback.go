// Package feedback turns station events into short audio cues and toast
// notifications. Nothing here can affect the pending queue: all output is
// fire-and-forget and failures are swallowed.
package feedback

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/BearBump/PassportDesk/internal/services/events"
	"github.com/pkg/errors"
)

var ErrAudioUnavailable = errors.New("audio output unavailable")

type Tone struct {
	Name        string
	FrequencyHz int
	Duration    time.Duration
	Repeat      int
}

var (
	ToneAccepted       = Tone{Name: "accepted", FrequencyHz: 880, Duration: 80 * time.Millisecond, Repeat: 1}
	ToneDuplicate      = Tone{Name: "duplicate", FrequencyHz: 440, Duration: 120 * time.Millisecond, Repeat: 2}
	ToneRejected       = Tone{Name: "rejected", FrequencyHz: 220, Duration: 250 * time.Millisecond, Repeat: 3}
	ToneDispatched     = Tone{Name: "dispatched", FrequencyHz: 1320, Duration: 150 * time.Millisecond, Repeat: 1}
	TonePartialFailure = Tone{Name: "partial_failure", FrequencyHz: 330, Duration: 200 * time.Millisecond, Repeat: 2}
	ToneDispatchFailed = Tone{Name: "dispatch_failed", FrequencyHz: 220, Duration: 400 * time.Millisecond, Repeat: 3}
)

type Level string

const (
	LevelSuccess Level = "success"
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

type Toast struct {
	Kind    events.Kind
	Level   Level
	Message string
}

type Player interface {
	Play(t Tone) error
}

// PlayerFactory opens the audio device. It is called at most once.
type PlayerFactory func() (Player, error)

type Toaster interface {
	Toast(t Toast)
}

type cue struct {
	tone  *Tone
	toast *Toast
}

const cueBuffer = 64

type Emitter struct {
	factory PlayerFactory
	toaster Toaster
	muted   bool
	logger  *slog.Logger

	primeOnce sync.Once
	mu        sync.Mutex
	player    Player

	startOnce sync.Once
	closeOnce sync.Once
	cues      chan cue
	done      chan struct{}
}

func New(factory PlayerFactory, toaster Toaster, logger *slog.Logger) *Emitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Emitter{
		factory: factory,
		toaster: toaster,
		logger:  logger.With("component", "feedback"),
		cues:    make(chan cue, cueBuffer),
		done:    make(chan struct{}),
	}
}

func (e *Emitter) WithMuted(muted bool) *Emitter {
	e.muted = muted
	return e
}

// Prime opens the audio device on the first operator gesture. Later calls
// are no-ops, so at most one player ever exists.
func (e *Emitter) Prime() {
	e.primeOnce.Do(func() {
		if e.muted || e.factory == nil {
			return
		}
		p, err := e.factory()
		if err != nil {
			e.logger.Debug("audio disabled", "error", err.Error())
			return
		}
		e.mu.Lock()
		e.player = p
		e.mu.Unlock()
	})
}

// OnEvent implements events.Observer.
func (e *Emitter) OnEvent(ev events.Event) {
	c, ok := cueFor(ev)
	if !ok {
		return
	}
	e.startOnce.Do(func() { go e.loop() })
	select {
	case e.cues <- c:
	default:
		// очередь сигналов переполнена: сигнал теряем, сканирование важнее
	}
}

func (e *Emitter) Close() {
	e.closeOnce.Do(func() { close(e.done) })
}

func (e *Emitter) loop() {
	for {
		select {
		case <-e.done:
			return
		case c := <-e.cues:
			e.handle(c)
		}
	}
}

func (e *Emitter) handle(c cue) {
	if c.toast != nil && e.toaster != nil {
		e.safely(func() { e.toaster.Toast(*c.toast) })
	}
	if c.tone == nil || e.muted {
		return
	}
	e.mu.Lock()
	p := e.player
	e.mu.Unlock()
	if p == nil {
		return
	}
	e.safely(func() {
		if err := p.Play(*c.tone); err != nil {
			e.logger.Debug("play tone", "tone", c.tone.Name, "error", err.Error())
		}
	})
}

func (e *Emitter) safely(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Debug("feedback output panicked", "panic", r)
		}
	}()
	fn()
}

func cueFor(ev events.Event) (cue, bool) {
	id := ""
	if ev.Item != nil {
		id = ev.Item.ID
	}
	switch ev.Kind {
	case events.KindAccepted:
		return cue{tone: &ToneAccepted, toast: &Toast{Kind: ev.Kind, Level: LevelSuccess, Message: fmt.Sprintf("Queued %s (%d pending)", id, ev.Count)}}, true
	case events.KindDuplicate:
		return cue{tone: &ToneDuplicate, toast: &Toast{Kind: ev.Kind, Level: LevelWarning, Message: "Already in queue: " + errText(ev.Err)}}, true
	case events.KindRejected:
		return cue{tone: &ToneRejected, toast: &Toast{Kind: ev.Kind, Level: LevelError, Message: "Not a valid passport code"}}, true
	case events.KindValidation:
		return cue{tone: &ToneRejected, toast: &Toast{Kind: ev.Kind, Level: LevelError, Message: errText(ev.Err)}}, true
	case events.KindRemoved:
		return cue{toast: &Toast{Kind: ev.Kind, Level: LevelInfo, Message: "Removed " + id}}, true
	case events.KindRestored:
		return cue{toast: &Toast{Kind: ev.Kind, Level: LevelInfo, Message: fmt.Sprintf("Restored %d pending scans", ev.Count)}}, true
	case events.KindDispatched:
		return cue{tone: &ToneDispatched, toast: &Toast{Kind: ev.Kind, Level: LevelSuccess, Message: fmt.Sprintf("Dispatched %d units", ev.Count)}}, true
	case events.KindPartialFailure:
		return cue{tone: &TonePartialFailure, toast: &Toast{Kind: ev.Kind, Level: LevelWarning, Message: fmt.Sprintf("%d units failed and stay in the queue", ev.Count)}}, true
	case events.KindDispatchFailed:
		return cue{tone: &ToneDispatchFailed, toast: &Toast{Kind: ev.Kind, Level: LevelError, Message: "Dispatch failed, queue unchanged: " + errText(ev.Err)}}, true
	}
	return cue{}, false
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
