package runstatus

import "strings"

// Subscription lifecycle states reported through realtime hooks.
const (
	Connecting   = "Connecting"
	Connected    = "Connected"
	Reconnecting = "Reconnecting"
	Stopped      = "Stopped"
)

const (
	KeyConnecting   = "connecting"
	KeyConnected    = "connected"
	KeyReconnecting = "reconnecting"
	KeyStopped      = "stopped"
)

func Key(status string) string {
	return strings.ToLower(strings.TrimSpace(status))
}

// Terminal reports whether no further transitions follow status.
func Terminal(status string) bool {
	return Key(status) == KeyStopped
}
