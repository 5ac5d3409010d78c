package session

import (
	"sync"
	"testing"
	"time"

	"noodleknocker/core"
	"noodleknocker/protocol"
	"noodleknocker/services/deepgram/stt"
)

type fakeRecogConn struct {
	transcripts chan stt.Transcript

	mu           sync.Mutex
	frames       [][]byte
	closeStreams int
	closed       bool
}

func newFakeRecogConn() *fakeRecogConn {
	return &fakeRecogConn{transcripts: make(chan stt.Transcript, 8)}
}

func (c *fakeRecogConn) SendAudio(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, frame)
	return nil
}

func (c *fakeRecogConn) Transcripts() <-chan stt.Transcript { return c.transcripts }

func (c *fakeRecogConn) CloseStream() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeStreams++
	close(c.transcripts)
	return nil
}

func (c *fakeRecogConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
	}
	return nil
}

func (c *fakeRecogConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeRecogConn) frameCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

type recogDialRecorder struct {
	mu    sync.Mutex
	conns []*fakeRecogConn
	rates []int
}

func (r *recogDialRecorder) dial(sampleRate int) (recogConn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn := newFakeRecogConn()
	r.conns = append(r.conns, conn)
	r.rates = append(r.rates, sampleRate)
	return conn, nil
}

func (r *recogDialRecorder) conn(i int) *fakeRecogConn {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i >= len(r.conns) {
		return nil
	}
	return r.conns[i]
}

func (r *recogDialRecorder) dialCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

func TestStartForwardsAudioAndRelaysTranscripts(t *testing.T) {
	dialer := &recogDialRecorder{}
	events := &eventRecorder{}
	b := newRecogBridge(dialer.dial, events.emit, core.GetLogger())
	defer b.Close()

	b.Start(16000)
	waitFor(t, time.Second, "recognition dial", func() bool { return dialer.dialCount() == 1 })

	b.Audio([]byte{1, 2, 3, 4})
	conn := dialer.conn(0)
	waitFor(t, time.Second, "audio forwarded", func() bool { return conn.frameCount() == 1 })

	conn.transcripts <- stt.Transcript{Text: "hello world", Final: true}
	waitFor(t, time.Second, "transcript relayed", func() bool {
		return events.count(protocol.EvtTranscribePart) == 1
	})
}

func TestStartReplacesExistingConnection(t *testing.T) {
	dialer := &recogDialRecorder{}
	events := &eventRecorder{}
	b := newRecogBridge(dialer.dial, events.emit, core.GetLogger())
	defer b.Close()

	b.Start(16000)
	waitFor(t, time.Second, "first dial", func() bool { return dialer.dialCount() == 1 })
	b.Start(8000)
	waitFor(t, time.Second, "second dial", func() bool { return dialer.dialCount() == 2 })

	dialer.mu.Lock()
	rates := append([]int(nil), dialer.rates...)
	dialer.mu.Unlock()
	if rates[0] != 16000 || rates[1] != 8000 {
		t.Errorf("dial rates = %v", rates)
	}
	if !dialer.conn(0).isClosed() {
		t.Error("first connection was not closed on restart")
	}
}

func TestStreamEndEmitsTranscribeDone(t *testing.T) {
	dialer := &recogDialRecorder{}
	events := &eventRecorder{}
	b := newRecogBridge(dialer.dial, events.emit, core.GetLogger())
	defer b.Close()

	b.Start(16000)
	waitFor(t, time.Second, "dial", func() bool { return dialer.dialCount() == 1 })

	b.Stop()
	waitFor(t, time.Second, "terminal done event", func() bool {
		return events.count(protocol.EvtTranscribeDone) == 1
	})
}

func TestStopWithoutConnectionIsNoop(t *testing.T) {
	dialer := &recogDialRecorder{}
	events := &eventRecorder{}
	b := newRecogBridge(dialer.dial, events.emit, core.GetLogger())
	defer b.Close()

	b.Stop()
	b.Audio([]byte{1, 2})
	if dialer.dialCount() != 0 {
		t.Errorf("dials = %d, want 0", dialer.dialCount())
	}
}
