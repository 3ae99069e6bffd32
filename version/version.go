package version

// Set by the linker at build time.
var (
	Version   = "1.0.0"
	GitHash   = "unknown"
	Timestamp = "unknown"
)
