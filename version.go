package ensemble

// Version is the release version, overridden at build time via
// -ldflags "-X github.com/ensemble-dev/ensemble.Version=...".
var Version = "0.1.0"
