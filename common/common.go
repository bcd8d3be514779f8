// Package common holds module-wide identity constants shared by the
// binaries and the metrics surface.
package common

// PackageName labels metrics and logs emitted by this module.
const PackageName = "ciphertrace"

// Version is stamped by the release build; "dev" otherwise.
var Version = "dev"
