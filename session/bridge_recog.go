package session

import (
	"sync"

	"noodleknocker/core"
	"noodleknocker/protocol"
	"noodleknocker/services/deepgram/stt"
	"noodleknocker/utils/audio"
)

// recogConn is the slice of a recognition connection the bridge drives.
// services/deepgram/stt.Conn satisfies it.
type recogConn interface {
	SendAudio(frame []byte) error
	Transcripts() <-chan stt.Transcript
	CloseStream() error
	Close() error
}

// recogDialer opens a recognition connection for one sample rate.
type recogDialer func(sampleRate int) (recogConn, error)

// RecogBridge owns the session's single recognition connection and relays
// transcripts back to the client.
type RecogBridge struct {
	dial   recogDialer
	emit   func(cmd string, payload any)
	logger *core.Logger

	mu         sync.Mutex
	conn       recogConn
	sampleRate int
	generation int
	closed     bool
}

func newRecogBridge(dial recogDialer, emit func(string, any), logger *core.Logger) *RecogBridge {
	return &RecogBridge{dial: dial, emit: emit, logger: logger}
}

// Start opens a fresh recognition connection, replacing any existing one.
func (b *RecogBridge) Start(sampleRate int) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	if b.conn != nil {
		b.conn.Close()
		b.conn = nil
	}
	b.generation++
	generation := b.generation
	b.sampleRate = sampleRate
	b.mu.Unlock()

	go func() {
		conn, err := b.dial(sampleRate)
		if err != nil {
			b.logger.Errorf("recognition connection failed: %v", err)
			return
		}
		b.mu.Lock()
		if b.closed || b.generation != generation {
			b.mu.Unlock()
			conn.Close()
			return
		}
		b.conn = conn
		b.mu.Unlock()
		b.pump(conn)
	}()
}

// pump relays transcript fragments until the stream ends, then reports
// completion.
func (b *RecogBridge) pump(conn recogConn) {
	for tr := range conn.Transcripts() {
		b.emit(protocol.EvtTranscribePart, protocol.TranscriptPayload{
			Text:  tr.Text,
			Final: tr.Final,
		})
	}
	b.mu.Lock()
	open := b.conn == conn
	if open {
		b.conn = nil
	}
	closed := b.closed
	b.mu.Unlock()
	if open && !closed {
		b.emit(protocol.EvtTranscribeDone, protocol.TextDonePayload{PlayerIndex: -1, QuestionIndex: -1})
	}
}

// Audio forwards one raw client audio frame to the open connection.
// Frames arriving with no connection open are dropped.
func (b *RecogBridge) Audio(frame []byte) {
	b.mu.Lock()
	conn := b.conn
	sampleRate := b.sampleRate
	b.mu.Unlock()
	if conn == nil {
		return
	}
	normalized := audio.NormalizeForRecognition(frame, sampleRate)
	if err := conn.SendAudio(normalized); err != nil {
		b.logger.Errorf("recognition send failed: %v", err)
	}
}

// Stop asks the open connection to finish gracefully. No-op when idle.
func (b *RecogBridge) Stop() {
	b.mu.Lock()
	conn := b.conn
	b.mu.Unlock()
	if conn == nil {
		return
	}
	if err := conn.CloseStream(); err != nil {
		b.logger.Errorf("recognition close-stream failed: %v", err)
	}
}

// Close tears down the bridge and any open connection.
func (b *RecogBridge) Close() {
	b.mu.Lock()
	b.closed = true
	conn := b.conn
	b.conn = nil
	b.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}
