package tools

import (
	"fmt"
	"log/slog"

	"github.com/orbitvoice/go-orbit/pkg/wire"
)

// Dispatcher maps inbound function calls onto the registered tool set.
// Every call receives exactly one response, recognized or not; an
// unknown name is answered descriptively so the service's call/response
// protocol is never left dangling.
type Dispatcher struct {
	tools  map[string]Tool
	order  []Tool
	logger *slog.Logger
}

// NewDispatcher creates a dispatcher with the default visual tools
// bound to fx.
func NewDispatcher(fx VisualEffects) *Dispatcher {
	d := &Dispatcher{
		tools:  make(map[string]Tool),
		logger: slog.Default().With("component", "tools"),
	}
	for _, t := range DefaultTools(fx) {
		d.Register(t)
	}
	return d
}

// Register adds (or replaces) a tool.
func (d *Dispatcher) Register(t Tool) {
	if _, exists := d.tools[t.Name]; !exists {
		d.order = append(d.order, t)
	} else {
		for i := range d.order {
			if d.order[i].Name == t.Name {
				d.order[i] = t
				break
			}
		}
	}
	d.tools[t.Name] = t
}

// Declarations returns the function declarations for the session setup
// frame, in registration order.
func (d *Dispatcher) Declarations() []wire.FunctionDeclaration {
	decls := make([]wire.FunctionDeclaration, 0, len(d.order))
	for _, t := range d.order {
		decls = append(decls, wire.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Parameters,
		})
	}
	return decls
}

// Dispatch invokes the tool named by the call and returns its response.
// An unrecognized name is not an error: it is answered with a
// descriptive result and logged as a warning.
func (d *Dispatcher) Dispatch(call wire.FunctionCall) wire.FunctionResponse {
	resp := wire.FunctionResponse{ID: call.ID, Name: call.Name}

	tool, ok := d.tools[call.Name]
	if !ok {
		d.logger.Warn("unknown tool call", "name", call.Name, "id", call.ID)
		resp.Response = wire.ResponsePayload{Result: fmt.Sprintf("Unknown function: %s", call.Name)}
		return resp
	}

	d.logger.Debug("tool call", "name", call.Name, "id", call.ID, "args", call.Args)
	resp.Response = wire.ResponsePayload{Result: tool.Handler(call.Args)}
	return resp
}
