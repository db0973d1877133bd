// Package version records the build version of the almanac server.
package version

// Version is set at build time via -ldflags "-X ...". The default marks
// a development build.
var Version = "0.3.0-dev"
