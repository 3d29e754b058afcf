// Orbit - live voice assistant with a browser-rendered visual sphere.
// Streams microphone audio to the Gemini Live API and plays the model's
// speech back through the speakers.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/orbitvoice/go-orbit/internal/log"
	"github.com/orbitvoice/go-orbit/internal/observability"
	"github.com/orbitvoice/go-orbit/pkg/client"
	"github.com/orbitvoice/go-orbit/pkg/web"
)

func main() {
	cfg, port, staticDir := parseFlags()
	level := "info"
	if cfg.Debug {
		level = "debug"
	}
	log.Init(level)

	metrics := observability.New()

	// The web server is both the UI and the client's visual-effects
	// and status target, so it is built first and bound afterwards.
	srv := web.NewServer(web.Options{
		Port:      port,
		StaticDir: staticDir,
		Voices:    client.Voices,
		Personas:  personaNames(),
		Metrics:   metrics,
	})

	c, err := client.New(cfg,
		client.WithEffects(srv),
		client.WithNotifier(srv),
		client.WithMetrics(metrics),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}
	defer c.Close()
	srv.SetConversation(conversation{c})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	if err := c.Connect(); err != nil {
		fmt.Fprintf(os.Stderr, "connect failed: %v\n", err)
		os.Exit(1)
	}

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			fmt.Fprintf(os.Stderr, "web server error: %v\n", err)
			os.Exit(1)
		}
	}
	_ = srv.Shutdown()
}

// parseFlags parses command line flags and returns configuration.
func parseFlags() (client.Config, string, string) {
	cfg := client.DefaultConfig()

	debug := flag.Bool("debug", false, "Enable verbose debug logging")
	port := flag.String("port", "8089", "UI listen port")
	staticDir := flag.String("static", "./web", "Static UI directory")
	model := flag.String("model", cfg.Model, "Live API model")
	voice := flag.String("voice", cfg.Voice, "Assistant voice")
	persona := flag.String("persona", string(cfg.Persona), "Assistant persona")
	backend := flag.String("audio-backend", cfg.AudioBackend, "Audio backend: auto, portaudio, mock")
	wavDump := flag.String("wav-dump", "", "Mirror captured audio to a WAV file")
	flag.Parse()

	cfg.Debug = *debug
	cfg.Model = *model
	cfg.Voice = *voice
	cfg.Persona = client.Persona(*persona)
	cfg.AudioBackend = *backend
	cfg.WAVDumpPath = *wavDump

	cfg.APIKey = os.Getenv("ORBIT_API_KEY")
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("GEMINI_API_KEY")
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("GOOGLE_API_KEY")
	}
	return cfg, *port, *staticDir
}

func personaNames() []string {
	names := make([]string, len(client.Personas))
	for i, p := range client.Personas {
		names[i] = string(p)
	}
	return names
}

// conversation adapts *client.Client to the string-typed web API.
type conversation struct {
	c *client.Client
}

func (a conversation) StartCapture(ctx context.Context) error { return a.c.StartCapture(ctx) }
func (a conversation) StopCapture() error                     { return a.c.StopCapture() }
func (a conversation) ToggleCapture(ctx context.Context) (bool, error) {
	return a.c.ToggleCapture(ctx)
}
func (a conversation) Capturing() bool           { return a.c.Capturing() }
func (a conversation) SetVoice(v string) error   { return a.c.SetVoice(v) }
func (a conversation) SetPersona(p string) error { return a.c.SetPersona(client.Persona(p)) }
func (a conversation) Voice() string             { return a.c.Voice() }
func (a conversation) Persona() string           { return string(a.c.Persona()) }
func (a conversation) State() string             { return a.c.State().String() }
