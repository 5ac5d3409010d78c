package main

import (
	_ "embed"
	"flag"
	"net/http"
	"os"

	"noodleknocker/core"
	"noodleknocker/gen"
	"noodleknocker/services/deepgram/stt"
	elevenlabs "noodleknocker/services/elevenlabs/tts"
	"noodleknocker/session"

	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
)

//go:embed static/index.html
var homeHTML []byte

func main() {
	var addr string
	flag.StringVar(&addr, "addr", ":8787", "HTTP listen address")
	flag.Parse()

	if err := godotenv.Load(".env.local"); err != nil {
		core.GetLogger().With(map[string]any{"error": err}).Warn("No .env.local file found or failed to load")
	}
	logger := core.GetLogger()

	generator := gen.NewGenerator(gen.Config{
		APIKey:  os.Getenv("OPENAI_API_KEY"),
		BaseURL: os.Getenv("OPENAI_BASE_URL"),
		Model:   os.Getenv("OPENAI_MODEL"),
	}, logger)

	sessionConfig := session.Config{
		Synth: elevenlabs.Config{
			APIKey:  os.Getenv("ELEVENLABS_API_KEY"),
			ModelID: os.Getenv("ELEVENLABS_MODEL_ID"),
		},
		Recog: stt.Config{
			APIKey:         os.Getenv("DEEPGRAM_API_KEY"),
			InterimResults: true,
			Punctuate:      true,
			SmartFormat:    true,
		},
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		w.Write(homeHTML)
	})
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		if !websocket.IsWebSocketUpgrade(r) {
			http.Error(w, "Expected Upgrade: websocket", http.StatusUpgradeRequired)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Errorf("websocket upgrade failed: %v", err)
			return
		}
		go session.New(conn, generator, sessionConfig, logger).Run()
	})

	logger.Infof("listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Fatal("server failed", "error", err)
	}
}
