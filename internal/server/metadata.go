package server

import (
	"runtime/debug"
	"strings"

	"github.com/RJ/bevygap-spaceships/internal/protocol"
)

// BuildInfo describes the running binary: module version plus the VCS
// revision when the toolchain embedded one.
func BuildInfo() string {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}
	parts := []string{bi.Main.Path + "@" + bi.Main.Version, bi.GoVersion}
	var rev, modified string
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			rev = s.Value
		case "vcs.modified":
			modified = s.Value
		}
	}
	if rev != "" {
		if len(rev) > 12 {
			rev = rev[:12]
		}
		if modified == "true" {
			rev += "-dirty"
		}
		parts = append(parts, rev)
	}
	return strings.Join(parts, " ")
}

// NewMetadata returns the metadata resource sent to every client.
func NewMetadata(location, fqdn string) protocol.ServerMetadata {
	return protocol.ServerMetadata{
		Location:  location,
		FQDN:      fqdn,
		BuildInfo: BuildInfo(),
	}
}
