package version

// Version contains the application version information.
// This should be set via build-time ldflags in production:
// go build -ldflags "-X uxpipe/internal/version.Version=v1.2.0".
var Version = "unknown"

// BuildInfo contains additional build metadata.
var (
	BuildTime = "unknown"
	GitCommit = "unknown"
)
