package logging

type Category string
type SubCategory string
type ExtraKey string

const (
	General         Category = "General"
	Internal        Category = "Internal"
	ChangeLog       Category = "ChangeLog"
	Presence        Category = "Presence"
	Dispatch        Category = "Dispatch"
	WebSocket       Category = "WebSocket"
	Mongo           Category = "Mongo"
	Redis           Category = "Redis"
	SQLite          Category = "SQLite"
	RabbitMQ        Category = "RabbitMQ"
	RequestResponse Category = "RequestResponse"
)

const (
	Startup         SubCategory = "Startup"
	Shutdown        SubCategory = "Shutdown"
	RateLimiting    SubCategory = "RateLimiting"
	ExternalService SubCategory = "ExternalService"
	Append          SubCategory = "Append"
	Subscribe       SubCategory = "Subscribe"
	Heartbeat       SubCategory = "Heartbeat"
	Conflict        SubCategory = "Conflict"
	Availability    SubCategory = "Availability"
	Migration       SubCategory = "Migration"
	Session         SubCategory = "Session"
)

const (
	AppName      ExtraKey = "AppName"
	LoggerName   ExtraKey = "Logger"
	ClientIp     ExtraKey = "ClientIp"
	Method       ExtraKey = "Method"
	StatusCode   ExtraKey = "StatusCode"
	BodySize     ExtraKey = "BodySize"
	Path         ExtraKey = "Path"
	Latency      ExtraKey = "Latency"
	ErrorMessage ExtraKey = "ErrorMessage"
	ProjectID    ExtraKey = "ProjectId"
	ActorID      ExtraKey = "ActorId"
	ChangeType   ExtraKey = "ChangeType"
	EntityID     ExtraKey = "EntityId"
	RecordID     ExtraKey = "RecordId"
	Backend      ExtraKey = "Backend"
)
