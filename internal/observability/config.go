package observability

// Config captures opt-in observability toggles that wire into the server.
type Config struct {
	// EnablePprofTrace mounts the runtime trace endpoint on the HTTP mux.
	EnablePprofTrace bool
	// OTLPEndpoint is the collector URL for span export. Empty disables
	// tracing export.
	OTLPEndpoint string
	ServiceName  string
}
