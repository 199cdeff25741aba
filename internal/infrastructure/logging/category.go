package logging

type Category string
type SubCategory string
type ExtraKey string

const (
	General         Category = "General"
	IO              Category = "IO"
	Internal        Category = "Internal"
	Redis           Category = "Redis"
	RabbitMQ        Category = "RabbitMQ"
	MongoDB         Category = "MongoDB"
	Validation      Category = "Validation"
	RequestResponse Category = "RequestResponse"
	Prometheus      Category = "Prometheus"
	Circle          Category = "Circle"
	Game            Category = "Game"
	Sweeper         Category = "Sweeper"
	Auth            Category = "Auth"
	Signaling       Category = "Signaling"
)

const (
	// General
	Startup         SubCategory = "Startup"
	Shutdown        SubCategory = "Shutdown"
	RateLimiting    SubCategory = "RateLimiting"
	ExternalService SubCategory = "ExternalService"
	Retention       SubCategory = "Retention"

	// Circle
	CreateCircle SubCategory = "CreateCircle"
	JoinCircle   SubCategory = "JoinCircle"
	LeaveCircle  SubCategory = "LeaveCircle"
	EndCircle    SubCategory = "EndCircle"
	ExpireCircle SubCategory = "ExpireCircle"
	AudioToken   SubCategory = "AudioToken"
	FlagCircle   SubCategory = "FlagCircle"
	Lookup       SubCategory = "Lookup"

	// Game
	SessionLifecycle SubCategory = "SessionLifecycle"
	RoleAssignment   SubCategory = "RoleAssignment"
	Voting           SubCategory = "Voting"

	// Auth
	Authenticate SubCategory = "Authenticate"

	// Messaging
	Publish SubCategory = "Publish"
	Consume SubCategory = "Consume"
)

const (
	AppName      ExtraKey = "AppName"
	LoggerName   ExtraKey = "Logger"
	ClientIp     ExtraKey = "ClientIp"
	HostIp       ExtraKey = "HostIp"
	Method       ExtraKey = "Method"
	StatusCode   ExtraKey = "StatusCode"
	BodySize     ExtraKey = "BodySize"
	Path         ExtraKey = "Path"
	Latency      ExtraKey = "Latency"
	RequestBody  ExtraKey = "RequestBody"
	ResponseBody ExtraKey = "ResponseBody"
	ErrorMessage ExtraKey = "ErrorMessage"
	RequestID    ExtraKey = "RequestId"
	UserID       ExtraKey = "UserId"
	CircleID     ExtraKey = "CircleId"
	SessionID    ExtraKey = "SessionId"
	ChannelName  ExtraKey = "ChannelName"
	Count        ExtraKey = "Count"
	Duration     ExtraKey = "Duration"
	EventType    ExtraKey = "EventType"
)
