package domain

// ConnectionState is the health of the change feed as shown to the UI.
type ConnectionState string

const (
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateDisconnected ConnectionState = "disconnected"
)

// Label is the short status text rendered next to the indicator.
func (s ConnectionState) Label() string {
	switch s {
	case StateConnected:
		return "live"
	case StateConnecting:
		return "sync..."
	default:
		return "offline"
	}
}

// ChannelStatus is a lifecycle transition reported by a feed subscriber.
type ChannelStatus string

const (
	StatusSubscribed   ChannelStatus = "SUBSCRIBED"
	StatusClosed       ChannelStatus = "CLOSED"
	StatusChannelError ChannelStatus = "CHANNEL_ERROR"
)
