package client

import (
	"errors"
	"time"

	"github.com/orbitvoice/go-orbit/pkg/transport"
)

// Voice names accepted by the live API.
const (
	VoiceZephyr = "Zephyr"
	VoicePuck   = "Puck"
	VoiceCharon = "Charon"
	VoiceKore   = "Kore"
	VoiceFenrir = "Fenrir"
	VoiceAoede  = "Aoede"
	VoiceLeda   = "Leda"
	VoiceOrus   = "Orus"
)

// Voices lists the selectable voice names in display order.
var Voices = []string{
	VoiceZephyr, VoicePuck, VoiceCharon, VoiceKore,
	VoiceFenrir, VoiceAoede, VoiceLeda, VoiceOrus,
}

// Persona selects a system instruction preset.
type Persona string

const (
	PersonaAssistant   Persona = "assistant"
	PersonaStoryteller Persona = "storyteller"
	PersonaPirate      Persona = "pirate"
	PersonaZen         Persona = "zen"
)

// Personas lists the selectable personas in display order.
var Personas = []Persona{PersonaAssistant, PersonaStoryteller, PersonaPirate, PersonaZen}

var personaInstructions = map[Persona]string{
	PersonaAssistant: "You are a helpful voice assistant. Keep responses short and " +
		"conversational. You control a visual sphere on screen and can change its " +
		"color, rotation speed and background when asked.",
	PersonaStoryteller: "You are a warm storyteller. Answer questions by weaving " +
		"short vivid stories. Keep each response under thirty seconds of speech. " +
		"Use your visual tools to set the mood of the scene.",
	PersonaPirate: "You are a good-natured pirate captain. Speak in pirate dialect, " +
		"keep answers brief and salty. Use your visual tools dramatically.",
	PersonaZen: "You are a calm meditation guide. Speak slowly in short soothing " +
		"sentences. Prefer gentle colors and slow rotation when using visual tools.",
}

// Instruction returns the system instruction for the persona, falling
// back to the assistant preset for unknown values.
func (p Persona) Instruction() string {
	if s, ok := personaInstructions[p]; ok {
		return s
	}
	return personaInstructions[PersonaAssistant]
}

// Valid reports whether p is a known persona.
func (p Persona) Valid() bool {
	_, ok := personaInstructions[p]
	return ok
}

// Config holds all tunable parameters for the live client.
type Config struct {
	// API access
	APIKey string
	URL    string // Defaults to the Gemini Live websocket endpoint.
	Model  string

	// Session settings
	Voice   string
	Persona Persona

	// Audio settings
	InputSampleRate  int // Microphone rate (default: 16000)
	OutputSampleRate int // Model audio rate (default: 24000)
	FrameSize        int // Samples per captured frame (default: 4096)
	AudioBackend     string

	// Reconnection settings
	MaxRetries int
	BaseDelay  time.Duration

	// Debug settings
	Debug       bool
	WAVDumpPath string // When set, captured audio is mirrored to a WAV file.
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		URL:   transport.DefaultURL,
		Model: "models/gemini-2.0-flash-exp",

		Voice:   VoiceZephyr,
		Persona: PersonaAssistant,

		InputSampleRate:  16000,
		OutputSampleRate: 24000,
		FrameSize:        4096,
		AudioBackend:     "auto",

		MaxRetries: 3,
		BaseDelay:  time.Second,
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return errors.New("client: API key required")
	}
	if c.Model == "" {
		return errors.New("client: model required")
	}
	if !validVoice(c.Voice) {
		return errors.New("client: unknown voice: " + c.Voice)
	}
	if !c.Persona.Valid() {
		return errors.New("client: unknown persona: " + string(c.Persona))
	}
	if c.InputSampleRate <= 0 || c.OutputSampleRate <= 0 {
		return errors.New("client: sample rates must be positive")
	}
	if c.FrameSize <= 0 {
		return errors.New("client: frame size must be positive")
	}
	if c.MaxRetries < 0 {
		return errors.New("client: max retries must not be negative")
	}
	return nil
}

func validVoice(name string) bool {
	for _, v := range Voices {
		if v == name {
			return true
		}
	}
	return false
}

// WithVoice returns a copy with the voice set.
func (c Config) WithVoice(voice string) Config {
	c.Voice = voice
	return c
}

// WithPersona returns a copy with the persona set.
func (c Config) WithPersona(p Persona) Config {
	c.Persona = p
	return c
}

// WithDebug returns a copy with debug enabled.
func (c Config) WithDebug(debug bool) Config {
	c.Debug = debug
	return c
}
