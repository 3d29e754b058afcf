// Package wire defines the JSON message shapes exchanged with the live
// conversational service, and the PCM16 blob encoding used for audio.
// The service contract is fixed: clients send a setup frame, then stream
// base64 PCM media chunks and tool responses; the service streams back
// synthesized audio, tool calls, and turn/interruption signals.
package wire

import (
	"encoding/json"
	"fmt"
)

// Blob is a base64-encoded media payload with its MIME type.
type Blob struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

// ClientMessage is the envelope for every outbound frame.
// Exactly one field is set per message.
type ClientMessage struct {
	Setup         *Setup         `json:"setup,omitempty"`
	RealtimeInput *RealtimeInput `json:"realtimeInput,omitempty"`
	ToolResponse  *ToolResponse  `json:"toolResponse,omitempty"`
}

// Setup configures the session: model, voice, system instruction, and the
// tool declarations the service may call back into.
type Setup struct {
	Model             string             `json:"model"`
	GenerationConfig  *GenerationConfig  `json:"generationConfig,omitempty"`
	SystemInstruction *Content           `json:"systemInstruction,omitempty"`
	Tools             []ToolDeclarations `json:"tools,omitempty"`
}

// GenerationConfig selects response modalities and speech parameters.
type GenerationConfig struct {
	ResponseModalities []string      `json:"responseModalities,omitempty"`
	SpeechConfig       *SpeechConfig `json:"speechConfig,omitempty"`
}

// SpeechConfig selects the synthesized voice.
type SpeechConfig struct {
	VoiceConfig *VoiceConfig `json:"voiceConfig,omitempty"`
}

// VoiceConfig wraps the prebuilt voice selection.
type VoiceConfig struct {
	PrebuiltVoiceConfig *PrebuiltVoiceConfig `json:"prebuiltVoiceConfig,omitempty"`
}

// PrebuiltVoiceConfig names one of the service's fixed voices.
type PrebuiltVoiceConfig struct {
	VoiceName string `json:"voiceName"`
}

// Content is a sequence of parts (text and/or inline media).
type Content struct {
	Parts []Part `json:"parts"`
}

// Part is one element of a Content. Text and InlineData are mutually
// exclusive in practice.
type Part struct {
	Text       string `json:"text,omitempty"`
	InlineData *Blob  `json:"inlineData,omitempty"`
}

// ToolDeclarations groups function declarations for the setup frame.
type ToolDeclarations struct {
	FunctionDeclarations []FunctionDeclaration `json:"functionDeclarations"`
}

// FunctionDeclaration describes one callable tool to the service.
type FunctionDeclaration struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// RealtimeInput carries one outbound audio media chunk.
type RealtimeInput struct {
	Media *Blob `json:"media,omitempty"`
}

// ToolResponse carries results for previously received function calls.
type ToolResponse struct {
	FunctionResponses []FunctionResponse `json:"functionResponses"`
}

// FunctionResponse answers exactly one FunctionCall, matched by ID.
type FunctionResponse struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Response ResponsePayload `json:"response"`
}

// ResponsePayload is the result body of a FunctionResponse.
type ResponsePayload struct {
	Result string `json:"result"`
}

// ServerMessage is the envelope for every inbound frame. At most one of
// the pointer fields is non-nil.
type ServerMessage struct {
	SetupComplete        json.RawMessage       `json:"setupComplete,omitempty"`
	ServerContent        *ServerContent        `json:"serverContent,omitempty"`
	ToolCall             *ToolCall             `json:"toolCall,omitempty"`
	ToolCallCancellation *ToolCallCancellation `json:"toolCallCancellation,omitempty"`
}

// ServerContent is model output: audio/text parts plus turn signals.
// Interrupted signals barge-in: everything queued for playback must be
// flushed.
type ServerContent struct {
	ModelTurn    *Content `json:"modelTurn,omitempty"`
	Interrupted  bool     `json:"interrupted,omitempty"`
	TurnComplete bool     `json:"turnComplete,omitempty"`
}

// ToolCall asks the client to invoke named local functions.
type ToolCall struct {
	FunctionCalls []FunctionCall `json:"functionCalls"`
}

// FunctionCall is one tool invocation request.
type FunctionCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// ToolCallCancellation withdraws previously issued calls.
type ToolCallCancellation struct {
	IDs []string `json:"ids,omitempty"`
}

// ParseServerMessage decodes one inbound frame.
func ParseServerMessage(data []byte) (*ServerMessage, error) {
	var msg ServerMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("wire: malformed server message: %w", err)
	}
	return &msg, nil
}

// AudioParts returns the base64 payloads of all inline PCM parts in a
// model turn, in order. Non-audio parts are skipped.
func (c *ServerContent) AudioParts() []string {
	if c == nil || c.ModelTurn == nil {
		return nil
	}
	var out []string
	for _, p := range c.ModelTurn.Parts {
		if p.InlineData != nil && p.InlineData.Data != "" {
			out = append(out, p.InlineData.Data)
		}
	}
	return out
}

// Encode returns the JSON encoding of an outbound frame.
func (m *ClientMessage) Encode() ([]byte, error) {
	return json.Marshal(m)
}
