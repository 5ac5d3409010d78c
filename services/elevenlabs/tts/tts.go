package elevenlabs

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"noodleknocker/core"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
)

// Config holds configuration for the ElevenLabs streaming synthesis service.
type Config struct {
	APIKey  string `json:"api_key"`
	BaseURL string `json:"base_url"`
	ModelID string `json:"model_id"`

	// Voice settings
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = "wss://api.elevenlabs.io/v1/text-to-speech"
	}
	if c.ModelID == "" {
		c.ModelID = "eleven_turbo_v2_5"
	}
	if c.Stability == 0 {
		c.Stability = 0.5
	}
	if c.SimilarityBoost == 0 {
		c.SimilarityBoost = 0.75
	}
	return c
}

// Client messages
type (
	// BOS (Beginning of Stream) - sent once on connect
	bosMessage struct {
		Text             string        `json:"text"`
		VoiceSettings    voiceSettings `json:"voice_settings"`
		GenerationConfig genConfig     `json:"generation_config"`
	}

	voiceSettings struct {
		Stability       float64 `json:"stability"`
		SimilarityBoost float64 `json:"similarity_boost"`
	}

	genConfig struct {
		ChunkLengthSchedule []int `json:"chunk_length_schedule"`
	}

	textMessage struct {
		Text string `json:"text"`
	}
)

// Server messages
type (
	audioMessage struct {
		Audio   string `json:"audio"`
		IsFinal bool   `json:"isFinal"`
	}

	errorMessage struct {
		Error   string `json:"error"`
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
)

// Conn is one streaming synthesis connection, bound to a single voice at
// dial time. Changing voice requires a new Conn.
type Conn struct {
	config Config
	voice  string
	logger *core.Logger

	writeMu sync.Mutex
	conn    *websocket.Conn

	ready   chan struct{}
	audio   chan []byte
	flushed chan struct{}
	done    chan struct{}

	closeOnce sync.Once
}

// Dial opens a synthesis connection for one voice, with bounded retry on
// transient dial failures. The returned Conn is ready once its Ready channel
// closes; audio frames arrive on Audio until the connection ends.
func Dial(ctx context.Context, config Config, voice string, logger *core.Logger) (*Conn, error) {
	config = config.withDefaults()
	if config.APIKey == "" {
		return nil, errors.New("ElevenLabs API key is required")
	}
	if voice == "" {
		return nil, errors.New("voice is required")
	}
	if logger == nil {
		logger = core.GetLogger()
	}

	const maxRetries = 3
	const baseDelay = 500 * time.Millisecond

	var ws *websocket.Conn
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			delay := baseDelay * time.Duration(attempt)
			logger.Infof("elevenlabs: retrying dial (attempt %d/%d) in %v after error: %v",
				attempt+1, maxRetries, delay, lastErr)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}
		ws, lastErr = dialOnce(config, voice)
		if lastErr == nil {
			break
		}
	}
	if ws == nil {
		return nil, fmt.Errorf("elevenlabs: dial failed after %d attempts: %w", maxRetries, lastErr)
	}

	c := &Conn{
		config:  config,
		voice:   voice,
		logger:  logger,
		conn:    ws,
		ready:   make(chan struct{}),
		audio:   make(chan []byte, 64),
		flushed: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}

	if err := c.sendBOS(); err != nil {
		ws.Close()
		return nil, fmt.Errorf("elevenlabs: send BOS: %w", err)
	}
	close(c.ready)

	go c.readLoop()
	go c.heartbeat()
	return c, nil
}

func dialOnce(config Config, voice string) (*websocket.Conn, error) {
	url := fmt.Sprintf("%s/%s/stream-input?model_id=%s&output_format=pcm_24000",
		config.BaseURL, voice, config.ModelID)

	headers := map[string][]string{
		"xi-api-key": {config.APIKey},
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.Dial(url, headers)
	if err != nil {
		return nil, err
	}

	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	return conn, nil
}

// Voice returns the voice this connection was dialed with.
func (c *Conn) Voice() string { return c.voice }

// Ready closes once the stream accepts text.
func (c *Conn) Ready() <-chan struct{} { return c.ready }

// Audio yields decoded audio frames; closed when the connection ends.
func (c *Conn) Audio() <-chan []byte { return c.audio }

// Flushed signals each completed flush (the upstream final-audio marker).
func (c *Conn) Flushed() <-chan struct{} { return c.flushed }

// Done closes when the connection has fully shut down.
func (c *Conn) Done() <-chan struct{} { return c.done }

// SendText queues a text chunk for synthesis.
func (c *Conn) SendText(text string) error {
	if text == "" {
		return errors.New("text cannot be empty")
	}
	return c.sendJSON(textMessage{Text: text})
}

// Flush asks the service to finish generating buffered text. Completion is
// reported asynchronously on the Flushed channel.
func (c *Conn) Flush() error {
	// EOS: empty text tells the service to finish generation
	return c.sendJSON(textMessage{Text: ""})
}

// Close shuts the connection down. Safe to call more than once.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.writeMu.Lock()
		c.conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.conn.Close()
		c.writeMu.Unlock()
	})
	return nil
}

func (c *Conn) sendBOS() error {
	return c.sendJSON(bosMessage{
		Text: " ",
		VoiceSettings: voiceSettings{
			Stability:       c.config.Stability,
			SimilarityBoost: c.config.SimilarityBoost,
		},
		GenerationConfig: genConfig{
			ChunkLengthSchedule: []int{120, 160, 250, 290},
		},
	})
}

func (c *Conn) sendJSON(msg interface{}) error {
	data, err := sonic.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Conn) readLoop() {
	defer close(c.audio)
	defer c.Close()

	for {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				c.logger.Infof("elevenlabs: read error, closing: %v", err)
			}
			return
		}
		c.handleMessage(message)
	}
}

func (c *Conn) handleMessage(message []byte) {
	var raw map[string]any
	if err := sonic.Unmarshal(message, &raw); err != nil {
		c.logger.Infof("elevenlabs: unparseable message: %v", err)
		return
	}

	if errVal, ok := raw["error"]; ok && errVal != nil {
		var errMsg errorMessage
		if err := sonic.Unmarshal(message, &errMsg); err == nil {
			c.logger.Warnf("elevenlabs: service error: %s (code %d)", errMsg.Message, errMsg.Code)
		}
		return
	}

	var audioMsg audioMessage
	if err := sonic.Unmarshal(message, &audioMsg); err != nil {
		c.logger.Infof("elevenlabs: bad audio message: %v", err)
		return
	}

	if audioMsg.Audio != "" {
		frame, err := base64.StdEncoding.DecodeString(audioMsg.Audio)
		if err != nil {
			c.logger.Infof("elevenlabs: bad audio payload: %v", err)
			return
		}
		select {
		case c.audio <- frame:
		case <-c.done:
			return
		}
	}

	if audioMsg.IsFinal {
		select {
		case c.flushed <- struct{}{}:
		default:
		}
	}
}

// heartbeat keeps the upstream socket alive between utterances.
func (c *Conn) heartbeat() {
	ticker := time.NewTicker(25 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			err := c.conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				c.logger.Infof("elevenlabs: heartbeat ping failed: %v", err)
				c.Close()
				return
			}
		}
	}
}
