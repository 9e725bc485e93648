package version

// EmptyValue is the version of binaries built without release ldflags, such
// as those built by `go test`.
const EmptyValue = "set-by-make"

// Version is the latest tag on git for releases. On non-release commits, it may
// include additional information such as the most recent commit hash.
var Version = EmptyValue
