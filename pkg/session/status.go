package session

import "fmt"

// Notifier receives user-facing status and error text from the
// controller. Implementations must not block.
type Notifier interface {
	OnStatus(msg string)
	OnError(msg string)
}

// NopNotifier discards all notifications.
type NopNotifier struct{}

func (NopNotifier) OnStatus(string) {}
func (NopNotifier) OnError(string)  {}

// reporter builds the controller's user-facing message catalogue.
type reporter struct {
	n Notifier
}

func (r reporter) connected() {
	r.n.OnStatus("Connected")
}

func (r reporter) connecting() {
	r.n.OnStatus("Connecting...")
}

func (r reporter) closed() {
	r.n.OnStatus("Session closed")
}

func (r reporter) transportError(err error) {
	msg := "Connection problem."
	if hint := Classify(err).Remediation(); hint != "" {
		msg += " " + hint
	}
	r.n.OnStatus(msg)
}

func (r reporter) settingsChanged() {
	r.n.OnStatus("Settings changed. Session reset.")
}

func (r reporter) retrying(attempt, max int, delay int, cause error) {
	class := Classify(cause)
	msg := fmt.Sprintf("Connection lost. Retrying in %ds... (attempt %d/%d)", delay, attempt, max)
	if hint := class.Remediation(); hint != "" {
		msg += " " + hint
	}
	r.n.OnStatus(msg)
}

func (r reporter) retriesExhausted(cause error) {
	class := Classify(cause)
	msg := "Connection failed after multiple attempts."
	if hint := class.Remediation(); hint != "" {
		msg += " " + hint
	}
	r.n.OnError(msg)
}
