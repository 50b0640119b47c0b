// Package incremental decides which widget units need rebuilding. It digests
// source trees, persists the last-known digests in a manifest next to the
// bundles, and compares the two.
package incremental

import "time"

// Entry is the last successful build record of one unit.
type Entry struct {
	SourceHash string    `json:"sourceHash"`
	BundleFile string    `json:"bundleFile"`
	BundleSize int64     `json:"bundleSize"`
	BuiltAt    time.Time `json:"builtAt"`
}
