package version

// Version contains the launcher version information.
// This should be set via build-time ldflags in production:
// go build -ldflags "-X github.com/saleeh93/buck-cutom/internal/version.Version=v1.0.0".
var Version = "unknown"

// BuildInfo contains additional build metadata.
var (
	BuildTime = "unknown"
	GitCommit = "unknown"
)
