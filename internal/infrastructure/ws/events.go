package ws

// Server to client.
const (
	SyncRefetch      = "sync.refetch"
	SyncFieldUpdate  = "sync.field_update"
	SyncNotification = "sync.notification"
	PresenceSnapshot = "presence.snapshot"

	ErrorEvent          = "error"
	AuthenticationError = "error.auth"
)

// Client to server.
const (
	PresenceFocus = "presence.focus"
)
