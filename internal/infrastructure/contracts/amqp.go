package contracts

// AmqpMessage is the message structure for AMQP.
type AmqpMessage struct {
	ActorID string `json:"actorId"`
	Data    []byte `json:"data"`
}

// Routing keys
const (
	EventChangeAppended = "change.appended"

	projectRoutingPrefix = "project."
)

// ProjectRoutingKey is the topic key every change of a project is published under.
func ProjectRoutingKey(projectID string) string {
	return projectRoutingPrefix + projectID
}
