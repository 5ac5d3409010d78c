package stt

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"noodleknocker/core"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
)

// Config holds configuration options for Deepgram streaming recognition.
type Config struct {
	APIKey         string `json:"api_key"`
	BaseURL        string `json:"base_url"`
	Model          string `json:"model"`
	Language       string `json:"language"`
	InterimResults bool   `json:"interim_results"`
	Punctuate      bool   `json:"punctuate"`
	SmartFormat    bool   `json:"smart_format"`
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = "wss://api.deepgram.com"
	}
	if c.Model == "" {
		c.Model = "nova-2"
	}
	return c
}

// Transcript is one recognition result fragment.
type Transcript struct {
	Text  string
	Final bool
}

// Conn is one streaming recognition connection, parameterized by the audio
// sample rate at dial time.
type Conn struct {
	config Config
	logger *core.Logger

	writeMu sync.Mutex
	conn    *websocket.Conn

	transcripts chan Transcript
	done        chan struct{}

	closeOnce sync.Once
}

// Dial opens a recognition stream expecting linear16 mono audio at the given
// sample rate. Transcript fragments arrive on Transcripts until the stream
// ends.
func Dial(ctx context.Context, config Config, sampleRate int, logger *core.Logger) (*Conn, error) {
	config = config.withDefaults()
	if config.APIKey == "" {
		return nil, errors.New("Deepgram API key is required")
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d", sampleRate)
	}
	if logger == nil {
		logger = core.GetLogger()
	}

	wsURL, err := buildListenURL(config, sampleRate)
	if err != nil {
		return nil, fmt.Errorf("deepgram: build URL: %w", err)
	}

	headers := map[string][]string{
		"Authorization": {"Token " + config.APIKey},
	}
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	ws, _, err := dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		return nil, fmt.Errorf("deepgram: dial: %w", err)
	}

	c := &Conn{
		config:      config,
		logger:      logger,
		conn:        ws,
		transcripts: make(chan Transcript, 32),
		done:        make(chan struct{}),
	}
	go c.readLoop()
	go c.keepAlive()
	return c, nil
}

func buildListenURL(config Config, sampleRate int) (string, error) {
	base, err := url.Parse(config.BaseURL + "/v1/listen")
	if err != nil {
		return "", err
	}
	q := base.Query()
	q.Set("model", config.Model)
	if config.Language != "" {
		q.Set("language", config.Language)
	}
	q.Set("interim_results", strconv.FormatBool(config.InterimResults))
	q.Set("punctuate", strconv.FormatBool(config.Punctuate))
	q.Set("smart_format", strconv.FormatBool(config.SmartFormat))
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(sampleRate))
	q.Set("channels", "1")
	base.RawQuery = q.Encode()
	return base.String(), nil
}

// Transcripts yields recognition fragments; closed when the stream ends.
func (c *Conn) Transcripts() <-chan Transcript { return c.transcripts }

// Done closes when the connection has fully shut down.
func (c *Conn) Done() <-chan struct{} { return c.done }

// SendAudio forwards one raw linear16 audio frame.
func (c *Conn) SendAudio(frame []byte) error {
	if len(frame) == 0 {
		return nil
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteMessage(websocket.BinaryMessage, frame)
}

// CloseStream asks the service to finish transcribing buffered audio and end
// the stream gracefully. Remaining transcripts still arrive on Transcripts.
func (c *Conn) CloseStream() error {
	return c.sendControl("CloseStream")
}

// Finalize flushes pending audio into a final result without ending the
// stream.
func (c *Conn) Finalize() error {
	return c.sendControl("Finalize")
}

// Close tears the connection down. Safe to call more than once.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.writeMu.Lock()
		c.conn.Close()
		c.writeMu.Unlock()
	})
	return nil
}

func (c *Conn) sendControl(msgType string) error {
	data, err := sonic.Marshal(controlMessage{Type: msgType})
	if err != nil {
		return fmt.Errorf("marshal %s: %w", msgType, err)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Conn) readLoop() {
	defer close(c.transcripts)
	defer c.Close()

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				c.logger.Infof("deepgram: read error, closing: %v", err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		c.handleMessage(message)
	}
}

func (c *Conn) handleMessage(message []byte) {
	var base struct {
		Type string `json:"type"`
	}
	if err := sonic.Unmarshal(message, &base); err != nil {
		c.logger.Debugf("deepgram: unparseable message: %v", err)
		return
	}
	if base.Type != "Results" {
		return
	}

	var result listenResults
	if err := sonic.Unmarshal(message, &result); err != nil {
		c.logger.Debugf("deepgram: bad results frame: %v", err)
		return
	}
	if len(result.Channel.Alternatives) == 0 {
		return
	}
	text := result.Channel.Alternatives[0].Transcript
	if text == "" {
		return
	}

	t := Transcript{
		Text:  text,
		Final: result.IsFinal || result.SpeechFinal || result.FromFinalize,
	}
	select {
	case c.transcripts <- t:
	case <-c.done:
	}
}

// keepAlive prevents the service from timing out during speech gaps.
func (c *Conn) keepAlive() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.sendControl("KeepAlive"); err != nil {
				return
			}
		}
	}
}

type controlMessage struct {
	Type string `json:"type"`
}

type listenResults struct {
	Type         string  `json:"type"`
	Duration     float64 `json:"duration"`
	Start        float64 `json:"start"`
	IsFinal      bool    `json:"is_final"`
	SpeechFinal  bool    `json:"speech_final"`
	FromFinalize bool    `json:"from_finalize,omitempty"`
	Channel      struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}
