// Package web serves the browser UI for go-orbit: a small control API
// plus a websocket stream of state, status and visual-effect events.
package web

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"

	"github.com/orbitvoice/go-orbit/internal/log"
	"github.com/orbitvoice/go-orbit/internal/observability"
	"github.com/orbitvoice/go-orbit/pkg/hub"
)

// Conversation is the server's view of the assistant client.
type Conversation interface {
	StartCapture(ctx context.Context) error
	StopCapture() error
	ToggleCapture(ctx context.Context) (bool, error)
	Capturing() bool
	SetVoice(voice string) error
	SetPersona(persona string) error
	Voice() string
	Persona() string
	State() string
}

// VisualState mirrors the sphere rendered by the browser.
type VisualState struct {
	SphereColor   string  `json:"sphere_color"`
	RotationSpeed float64 `json:"rotation_speed"`
	Background    string  `json:"background"`
}

// State is the full snapshot pushed to the UI.
type State struct {
	Session    string      `json:"session"`
	Capturing  bool        `json:"capturing"`
	Voice      string      `json:"voice"`
	Persona    string      `json:"persona"`
	LastStatus string      `json:"last_status"`
	Visual     VisualState `json:"visual"`
}

// Event is one websocket frame pushed to the UI.
type Event struct {
	Type    string `json:"type"` // state, status, error
	Time    string `json:"time"`
	Message string `json:"message,omitempty"`
	State   *State `json:"state,omitempty"`
}

// Options configures the Server.
type Options struct {
	Port      string
	StaticDir string
	Voices    []string
	Personas  []string
	Metrics   *observability.Metrics
}

// Server is the UI bridge. It implements tools.VisualEffects and
// session.Notifier so tool calls and controller status land in the
// browser.
type Server struct {
	app    *fiber.App
	opts   Options
	conv   Conversation
	events *hub.Hub
	logger *slog.Logger

	mu         sync.RWMutex
	visual     VisualState
	lastStatus string
}

const (
	defaultSphereColor = "#4a90d9"
	defaultRotation    = 1.0
	defaultBackground  = "default"
)

// NewServer builds the fiber app and routes. Call SetConversation
// before Start; the server is also the client's effects and status
// target, so the two are constructed in sequence.
func NewServer(opts Options) *Server {
	s := &Server{
		opts:   opts,
		events: hub.New("events"),
		logger: log.Component("web"),
		visual: VisualState{
			SphereColor:   defaultSphereColor,
			RotationSpeed: defaultRotation,
			Background:    defaultBackground,
		},
	}

	app := fiber.New(fiber.Config{
		AppName:               "Orbit",
		DisableStartupMessage: true,
	})
	app.Use(cors.New())

	if opts.StaticDir != "" {
		app.Static("/", opts.StaticDir)
	}

	api := app.Group("/api")
	api.Get("/state", s.handleState)
	api.Get("/voices", s.handleVoices)
	api.Get("/personas", s.handlePersonas)
	api.Post("/capture/start", s.handleCaptureStart)
	api.Post("/capture/stop", s.handleCaptureStop)
	api.Post("/capture/toggle", s.handleCaptureToggle)
	api.Post("/voice", s.handleSetVoice)
	api.Post("/persona", s.handleSetPersona)

	if opts.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(opts.Metrics.Handler()))
	}

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/events", websocket.New(s.handleEventsWS))

	s.app = app
	return s
}

// SetConversation binds the assistant client the control API drives.
func (s *Server) SetConversation(conv Conversation) {
	s.mu.Lock()
	s.conv = conv
	s.mu.Unlock()
}

func (s *Server) conversation() Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conv
}

// Start runs the hub and listens on the configured port. It blocks.
func (s *Server) Start() error {
	go s.events.Run()
	s.logger.Info("ui listening", "port", s.opts.Port)
	return s.app.Listen(":" + s.opts.Port)
}

// Shutdown stops the listener and disconnects websocket clients.
func (s *Server) Shutdown() error {
	s.events.Stop()
	return s.app.Shutdown()
}

// App exposes the fiber app for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) snapshot() State {
	conv := s.conversation()
	s.mu.RLock()
	st := State{
		LastStatus: s.lastStatus,
		Visual:     s.visual,
	}
	s.mu.RUnlock()
	if conv != nil {
		st.Session = conv.State()
		st.Capturing = conv.Capturing()
		st.Voice = conv.Voice()
		st.Persona = conv.Persona()
	}
	return st
}

func (s *Server) pushState() {
	st := s.snapshot()
	_ = s.events.BroadcastJSON(Event{
		Type:  "state",
		Time:  time.Now().Format("15:04:05"),
		State: &st,
	})
}

// OnStatus implements session.Notifier.
func (s *Server) OnStatus(msg string) {
	s.mu.Lock()
	s.lastStatus = msg
	s.mu.Unlock()
	_ = s.events.BroadcastJSON(Event{
		Type:    "status",
		Time:    time.Now().Format("15:04:05"),
		Message: msg,
	})
	s.pushState()
}

// OnError implements session.Notifier.
func (s *Server) OnError(msg string) {
	s.mu.Lock()
	s.lastStatus = msg
	s.mu.Unlock()
	_ = s.events.BroadcastJSON(Event{
		Type:    "error",
		Time:    time.Now().Format("15:04:05"),
		Message: msg,
	})
	s.pushState()
}

// SetSphereColor implements tools.VisualEffects.
func (s *Server) SetSphereColor(color string) {
	s.mu.Lock()
	s.visual.SphereColor = color
	s.mu.Unlock()
	s.pushState()
}

// SetRotationSpeed implements tools.VisualEffects.
func (s *Server) SetRotationSpeed(speed float64) {
	s.mu.Lock()
	s.visual.RotationSpeed = speed
	s.mu.Unlock()
	s.pushState()
}

// SetBackgroundStyle implements tools.VisualEffects.
func (s *Server) SetBackgroundStyle(style string) {
	s.mu.Lock()
	s.visual.Background = style
	s.mu.Unlock()
	s.pushState()
}

// ResetToDefaults implements tools.VisualEffects.
func (s *Server) ResetToDefaults() {
	s.mu.Lock()
	s.visual = VisualState{
		SphereColor:   defaultSphereColor,
		RotationSpeed: defaultRotation,
		Background:    defaultBackground,
	}
	s.mu.Unlock()
	s.pushState()
}

func (s *Server) handleEventsWS(conn *websocket.Conn) {
	client := hub.NewClient(s.events, conn)
	// Seed the new client with the current state.
	s.pushState()
	client.Run()
}
