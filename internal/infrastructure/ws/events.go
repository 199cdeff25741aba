package ws

// Envelope types produced by the hub itself. Circle and game types live in the domain package.
const (
	ErrorEvent  = "error"
	BadEnvelope = "error.bad_envelope"
	RateLimited = "error.rate_limited"
)
