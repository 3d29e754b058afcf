package session

import "strings"

// FailureClass buckets a disconnect or dial failure for user-facing
// messaging. Classification never changes retry behavior.
type FailureClass int

const (
	FailureGeneric FailureClass = iota
	FailureNetwork
	FailureServiceUnavailable
)

func (c FailureClass) String() string {
	switch c {
	case FailureNetwork:
		return "network"
	case FailureServiceUnavailable:
		return "service_unavailable"
	default:
		return "generic"
	}
}

// Remediation returns a short hint appropriate to the failure class.
func (c FailureClass) Remediation() string {
	switch c {
	case FailureNetwork:
		return "Check your network connection."
	case FailureServiceUnavailable:
		return "The service may be temporarily unavailable."
	default:
		return ""
	}
}

var networkMarkers = []string{
	"connection refused",
	"connection reset",
	"no such host",
	"network is unreachable",
	"i/o timeout",
	"broken pipe",
	"unexpected eof",
}

var unavailableMarkers = []string{
	"503",
	"service unavailable",
	"429",
	"too many requests",
	"1011",
	"1012",
	"1013",
}

// Classify maps an error to a FailureClass by inspecting its text.
func Classify(err error) FailureClass {
	if err == nil {
		return FailureGeneric
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range unavailableMarkers {
		if strings.Contains(msg, marker) {
			return FailureServiceUnavailable
		}
	}
	for _, marker := range networkMarkers {
		if strings.Contains(msg, marker) {
			return FailureNetwork
		}
	}
	return FailureGeneric
}
