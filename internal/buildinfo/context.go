// Package buildinfo carries build-time metadata injected at startup
package buildinfo

import "fmt"

const unknown = "unknown"

// BuildInfo provides access to build-time metadata
type BuildInfo interface {
	GetVersion() string
	GetBuildDate() string
}

// Context contains build-time metadata that is not user-configurable.
// It is filled from linker flags in main and is not part of Settings.
type Context struct {
	// Version holds the Git version tag from build
	Version string

	// BuildDate is the time when the binary was built
	BuildDate string
}

// GetVersion implements BuildInfo.GetVersion
func (c *Context) GetVersion() string {
	if c == nil || c.Version == "" {
		return unknown
	}
	return c.Version
}

// GetBuildDate implements BuildInfo.GetBuildDate
func (c *Context) GetBuildDate() string {
	if c == nil || c.BuildDate == "" {
		return unknown
	}
	return c.BuildDate
}

// Release is the release name reported with telemetry events
func (c *Context) Release() string {
	return "vocalcoach@" + c.GetVersion()
}

// String formats the version line printed by the CLI
func (c *Context) String() string {
	return fmt.Sprintf("vocalcoach %s (built %s)", c.GetVersion(), c.GetBuildDate())
}
