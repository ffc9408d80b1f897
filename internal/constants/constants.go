// Package constants defines application-wide constants and version information.
package constants

import "runtime"

// AppName is used for the env prefix, metric namespace and report metadata.
const AppName = "precipgen"

// Version holds the application version information
const Version = "1.2-" + runtime.GOOS + "/" + runtime.GOARCH

// ReportSchema is bumped whenever the exported report layout changes.
const ReportSchema = 2
