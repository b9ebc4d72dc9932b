package control

import (
	"strings"

	"github.com/loykin/warden/internal/worker"
)

// AllProcesses is the scope token addressing every managed worker group.
const AllProcesses = "__ALL_PROCESSES__"

// Message is one decoded restart directive from the control channel.
// Wire form: <scope>[:<reloaded_files>][:<restart_order>]
// An empty wire message is the loop-termination sentinel and never decodes
// into a Message.
type Message struct {
	// Idents is nil when the directive addresses all groups.
	Idents []string
	// ReloadedFiles is a comma-separated list passed through verbatim for
	// diagnostics; warden never parses it.
	ReloadedFiles string
	Order         worker.RestartOrder
}

// Parse decodes a wire message. ok is false for the empty sentinel.
func Parse(raw string) (Message, bool) {
	if raw == "" {
		return Message{}, false
	}
	parts := strings.SplitN(raw, ":", 3)
	var m Message
	if parts[0] != AllProcesses {
		m.Idents = []string{parts[0]}
	}
	if len(parts) > 1 {
		m.ReloadedFiles = parts[1]
	}
	if len(parts) > 2 {
		m.Order = worker.ParseRestartOrder(parts[2])
	}
	return m, true
}

// Encode renders the wire form of the directive.
func (m Message) Encode() string {
	scope := AllProcesses
	if len(m.Idents) > 0 {
		scope = m.Idents[0]
	}
	if m.Order == worker.StartupFirst {
		return scope + ":" + m.ReloadedFiles + ":" + m.Order.String()
	}
	if m.ReloadedFiles != "" {
		return scope + ":" + m.ReloadedFiles
	}
	return scope
}
