// Package environ classifies the host execution environment from its
// location descriptor.
package environ

import (
	"strings"

	"github.com/studykit/relay/pkg/core"
)

// Detect returns ModeLocal when the protocol indicates a
// filesystem-loaded session or the hostname is empty, "localhost" or
// the loopback address; ModeServer otherwise. Pure function of the
// location; the handler computes it once at construction and caches
// it, so an environment change mid-session is not observed.
func Detect(loc core.Location) core.Mode {
	proto := strings.ToLower(strings.TrimSuffix(loc.Protocol, ":"))
	if proto == "file" {
		return core.ModeLocal
	}
	switch strings.ToLower(loc.Hostname) {
	case "", "localhost", "127.0.0.1":
		return core.ModeLocal
	}
	return core.ModeServer
}
