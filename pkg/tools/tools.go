// Package tools dispatches inbound tool calls to the visual collaborator
// and produces exactly one result per call.
package tools

// Background styles the visual collaborator understands.
const (
	BackgroundDefault = "default"
	BackgroundStarry  = "starry"
)

// VisualEffects is the collaborator contract for the presentational
// layer: a 3D sphere whose appearance the assistant can change.
type VisualEffects interface {
	// SetSphereColor changes the sphere's color (a CSS color name or
	// hex string; interpretation is the collaborator's concern).
	SetSphereColor(color string)

	// SetRotationSpeed changes the sphere's rotation speed factor (>= 0).
	SetRotationSpeed(factor float64)

	// SetBackgroundStyle switches between "default" and "starry".
	SetBackgroundStyle(style string)

	// ResetToDefaults restores the initial visual state.
	ResetToDefaults()
}

// NopEffects is a VisualEffects that does nothing, for headless use.
type NopEffects struct{}

func (NopEffects) SetSphereColor(string)     {}
func (NopEffects) SetRotationSpeed(float64)  {}
func (NopEffects) SetBackgroundStyle(string) {}
func (NopEffects) ResetToDefaults()          {}

// Tool represents a function the assistant can invoke during
// conversation.
type Tool struct {
	// Name is the unique identifier for the tool.
	Name string `json:"name"`

	// Description explains what the tool does, helping the model decide
	// when to use it.
	Description string `json:"description"`

	// Parameters defines the JSON schema for the tool's arguments.
	Parameters map[string]any `json:"parameters"`

	// Handler is called when the assistant invokes this tool. It
	// receives the parsed arguments and returns the result string sent
	// back to the service.
	Handler func(args map[string]any) string `json:"-"`
}

// DefaultTools returns the fixed set of visual-control tools bound to
// the given collaborator.
func DefaultTools(fx VisualEffects) []Tool {
	return []Tool{
		{
			Name:        "set_sphere_color",
			Description: "Changes the color of the 3D sphere. Accepts a CSS color name or hex value.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"color": map[string]any{
						"type":        "string",
						"description": "Color name or hex string, e.g. \"red\" or \"#ff8800\".",
					},
				},
				"required": []string{"color"},
			},
			Handler: func(args map[string]any) string {
				color, _ := args["color"].(string)
				fx.SetSphereColor(color)
				return "ok"
			},
		},
		{
			Name:        "set_rotation_speed",
			Description: "Changes how fast the sphere rotates. 1.0 is normal speed, 0 stops rotation.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"factor": map[string]any{
						"type":        "number",
						"description": "Rotation speed multiplier, 0 or greater.",
					},
				},
				"required": []string{"factor"},
			},
			Handler: func(args map[string]any) string {
				factor, _ := args["factor"].(float64)
				if factor < 0 {
					factor = 0
				}
				fx.SetRotationSpeed(factor)
				return "ok"
			},
		},
		{
			Name:        "set_background_style",
			Description: "Switches the scene background between \"default\" and \"starry\".",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"style": map[string]any{
						"type": "string",
						"enum": []string{BackgroundDefault, BackgroundStarry},
					},
				},
				"required": []string{"style"},
			},
			Handler: func(args map[string]any) string {
				style, _ := args["style"].(string)
				if style != BackgroundStarry {
					style = BackgroundDefault
				}
				fx.SetBackgroundStyle(style)
				return "ok"
			},
		},
		{
			Name:        "reset_visuals",
			Description: "Resets the sphere and background to their default appearance.",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
			Handler: func(args map[string]any) string {
				fx.ResetToDefaults()
				return "ok"
			},
		},
	}
}
