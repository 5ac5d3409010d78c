package session

import (
	"sync"
	"time"

	"noodleknocker/core"
	"noodleknocker/protocol"
	"noodleknocker/utils/text"
)

// synthConn is the slice of a synthesis connection the bridge drives.
// services/elevenlabs/tts.Conn satisfies it.
type synthConn interface {
	Voice() string
	Audio() <-chan []byte
	Flushed() <-chan struct{}
	SendText(text string) error
	Flush() error
	Close() error
}

// synthDialer opens a synthesis connection bound to one voice.
type synthDialer func(voice string) (synthConn, error)

const (
	defaultFlushTimeout   = 500 * time.Millisecond
	defaultFlushRetryWait = 250 * time.Millisecond
)

// SynthBridge owns the session's single synthesis connection. The connection
// is opened lazily on the first Speak and replaced whenever the requested
// voice differs from the open one. Text issued while a connection is still
// opening is buffered and sent once the dial completes.
type SynthBridge struct {
	dial      synthDialer
	emit      func(cmd string, payload any)
	emitAudio func(frame []byte)
	logger    *core.Logger

	flushTimeout   time.Duration
	flushRetryWait time.Duration

	mu            sync.Mutex
	conn          synthConn
	opening       bool
	targetVoice   string
	targetSpeaker string
	pendingText   string
	pendingFlush  bool
	closed        bool
}

func newSynthBridge(dial synthDialer, emit func(string, any), emitAudio func([]byte), logger *core.Logger) *SynthBridge {
	return &SynthBridge{
		dial:           dial,
		emit:           emit,
		emitAudio:      emitAudio,
		logger:         logger,
		flushTimeout:   defaultFlushTimeout,
		flushRetryWait: defaultFlushRetryWait,
	}
}

// Speak queues text for the given voice. speaker is the client-facing label
// reported when the speech finishes. A one-shot call flushes immediately
// after the text is delivered.
func (b *SynthBridge) Speak(raw, voice, speaker string, oneShot bool) {
	clean := text.SanitizeSpoken(raw)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.targetVoice = voice
	b.targetSpeaker = speaker

	if b.conn != nil && b.conn.Voice() == voice {
		conn := b.conn
		b.mu.Unlock()
		if clean != "" {
			if err := conn.SendText(clean); err != nil {
				b.logger.Errorf("synthesis send failed, dropping text: %v", err)
			}
		}
		if oneShot {
			b.flushAndWatch(conn, speaker)
		}
		return
	}

	// Wrong voice or no connection: tear down and reopen with the new voice,
	// buffering the text until the dial completes.
	if b.conn != nil {
		b.conn.Close()
		b.conn = nil
	}
	b.pendingText += clean
	if oneShot {
		b.pendingFlush = true
	}
	if !b.opening {
		b.opening = true
		go b.open(voice)
	}
	b.mu.Unlock()
}

func (b *SynthBridge) open(voice string) {
	conn, err := b.dial(voice)

	b.mu.Lock()
	b.opening = false
	if err != nil {
		b.pendingText = ""
		b.pendingFlush = false
		b.mu.Unlock()
		b.logger.Errorf("synthesis connection for voice %s failed, dropping utterance: %v", voice, err)
		return
	}
	if b.closed {
		b.mu.Unlock()
		conn.Close()
		return
	}
	if b.targetVoice != voice {
		// Voice changed again while dialing; start over with the new target.
		target := b.targetVoice
		b.opening = true
		b.mu.Unlock()
		conn.Close()
		go b.open(target)
		return
	}

	b.conn = conn
	pending := b.pendingText
	b.pendingText = ""
	flush := b.pendingFlush
	b.pendingFlush = false
	speaker := b.targetSpeaker
	b.mu.Unlock()

	go b.pump(conn)

	if pending != "" {
		if err := conn.SendText(pending); err != nil {
			b.logger.Errorf("synthesis send failed, dropping buffered text: %v", err)
		}
	}
	if flush {
		b.flushAndWatch(conn, speaker)
	}
}

// pump forwards synthesized audio to the client until the connection ends.
func (b *SynthBridge) pump(conn synthConn) {
	for frame := range conn.Audio() {
		b.emitAudio(frame)
	}
	b.mu.Lock()
	if b.conn == conn {
		b.conn = nil
	}
	b.mu.Unlock()
}

// FinishSpeaking flushes buffered audio and reports completion to the client.
// If no connection is open yet the flush is deferred once before giving up.
func (b *SynthBridge) FinishSpeaking() {
	if b.tryFlush() {
		return
	}
	go func() {
		time.Sleep(b.flushRetryWait)
		if !b.tryFlush() {
			b.logger.Errorf("finish-speaking with no synthesis connection, giving up")
		}
	}()
}

func (b *SynthBridge) tryFlush() bool {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return true
	}
	if b.conn != nil {
		conn := b.conn
		speaker := b.targetSpeaker
		b.mu.Unlock()
		b.flushAndWatch(conn, speaker)
		return true
	}
	if b.opening {
		b.pendingFlush = true
		b.mu.Unlock()
		return true
	}
	b.mu.Unlock()
	return false
}

// flushAndWatch requests a flush and emits exactly one done event when the
// acknowledgement arrives or the watchdog window elapses, whichever is first.
// The upstream acknowledgement is not reliable enough to wait on alone.
func (b *SynthBridge) flushAndWatch(conn synthConn, speaker string) {
	if err := conn.Flush(); err != nil {
		b.logger.Errorf("synthesis flush failed: %v", err)
	}
	go func() {
		select {
		case <-conn.Flushed():
		case <-time.After(b.flushTimeout):
		}
		b.emit(protocol.EvtSpeakDone, protocol.SpeakDonePayload{Speaker: speaker})
	}()
}

// ResetBuffer drops any text buffered for a still-opening connection without
// touching an open connection.
func (b *SynthBridge) ResetBuffer() {
	b.mu.Lock()
	b.pendingText = ""
	b.pendingFlush = false
	b.mu.Unlock()
}

// Close tears down the bridge and any open connection.
func (b *SynthBridge) Close() {
	b.mu.Lock()
	b.closed = true
	conn := b.conn
	b.conn = nil
	b.pendingText = ""
	b.pendingFlush = false
	b.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}
