// Package common holds identifiers shared across allysync packages and binaries.
package common

// PackageName is used as the metrics namespace and in user-facing output.
const PackageName = "allysync"

// Version is overridden at build time via -ldflags.
var Version = "dev"
