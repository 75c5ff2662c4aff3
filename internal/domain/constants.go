package domain

import "time"

// Listening ports. Hello and Core share 3001; they are never meant to run
// side by side without a PORT override on Core.
const (
	HelloPort     = 3001
	CoreAPIPort   = 3001
	WorkerAPIPort = 3003

	MinPort = 1
	MaxPort = 65535
)

// Response bodies, written verbatim for every request.
const (
	HelloBody     = "Hello, World!\n"
	CoreAPIBody   = "Core API Running\n"
	WorkerAPIBody = "Worker API Running\n"

	// ContentTypePlain is sent without a charset parameter.
	ContentTypePlain = "text/plain"
)

// Hello banner, logged once after the listener is bound.
const (
	BannerLine    = "Hello, World!"
	BannerRepeats = 1000
)

// RequestIDHeader carries the per-request id back to the client.
const RequestIDHeader = "X-Request-Id"

// HTTP server limits and shutdown budget.
const (
	ReadTimeout  = 10 * time.Second
	WriteTimeout = 10 * time.Second
	IdleTimeout  = 60 * time.Second

	ShutdownHTTPTimeout = 5 * time.Second
	ShutdownOTELTimeout = 5 * time.Second

	// GracefulShutdownTimeout bounds the whole shutdown sequence.
	GracefulShutdownTimeout = ShutdownHTTPTimeout + ShutdownOTELTimeout
)

// ValidPort reports whether p can be bound as an explicit TCP port.
func ValidPort(p int) bool {
	return p >= MinPort && p <= MaxPort
}
