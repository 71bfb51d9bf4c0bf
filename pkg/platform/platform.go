package platform

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/hashicorp/go-version"
)

// Platform represents a target platform with OS and Architecture
// Both OS and Arch can be "any" to match any platform
// or a specific value like "linux", "windows", "amd64", etc.
type Platform struct {
	OS   string `yaml:"os" json:"os"`
	Arch string `yaml:"arch" json:"arch"`
}

// Host describes the running installation target: its platform and the ABI
// version plugins are built against. An empty ABI accepts every target ABI.
type Host struct {
	Platform `yaml:",inline"`
	ABI string `yaml:"abi,omitempty" json:"abi,omitempty"`
}

// CurrentPlatform returns the current platform (OS and architecture)
func CurrentPlatform() Platform {
	goos := runtime.GOOS
	if goos == "" {
		goos = "unknown"
	}

	goarch := runtime.GOARCH
	if goarch == "" {
		goarch = "unknown"
	}

	return Platform{
		OS:   NormalizeOS(goos),
		Arch: NormalizeArch(goarch),
	}
}

// Matches checks if this platform matches the target platform
// "any" is a wildcard that matches any value
func (p Platform) Matches(target Platform) bool {
	pOS, tOS := normalizeOrAny(p.OS, NormalizeOS), normalizeOrAny(target.OS, NormalizeOS)
	pArch, tArch := normalizeOrAny(p.Arch, NormalizeArch), normalizeOrAny(target.Arch, NormalizeArch)
	return (pOS == AnyOS || tOS == AnyOS || pOS == tOS) &&
		(pArch == AnyArch || tArch == AnyArch || pArch == tArch)
}

// String returns a string representation of the platform
func (p Platform) String() string {
	return fmt.Sprintf("%s/%s", p.OS, p.Arch)
}

// SupportsABI reports whether a package built for targetABI can run on this host.
// A target ABI newer than the host ABI is rejected; an unparseable one never matches.
func (h Host) SupportsABI(targetABI string) bool {
	if targetABI == "" || h.ABI == "" {
		return true
	}
	hostABI, err := version.NewVersion(h.ABI)
	if err != nil {
		return true
	}
	target, err := version.NewVersion(targetABI)
	if err != nil {
		return false
	}
	return target.LessThanOrEqual(hostABI)
}

// Supports reports whether an artifact for the given os, arch and ABI is compatible with the host.
func (h Host) Supports(os, arch, targetABI string) bool {
	return h.Matches(Platform{OS: os, Arch: arch}) && h.SupportsABI(targetABI)
}

// NormalizeOS normalizes OS names to a common format
func NormalizeOS(os string) string {
	os = strings.ToLower(strings.TrimSpace(os))
	// Map common variations to standard names
	switch os {
	case "macos", "osx":
		return OSDarwin
	case "win", "win32", "win64":
		return OSWindows
	default:
		return os
	}
}

// NormalizeArch normalizes architecture names to a common format
func NormalizeArch(arch string) string {
	arch = strings.ToLower(strings.TrimSpace(arch))
	// Map common variations to standard names
	switch arch {
	case "x86_64", "x64":
		return ArchAMD64
	case "x86", "i386", "i486", "i586", "i686":
		return Arch386
	case "aarch64":
		return ArchARM64
	case "armv6l", "armv7l":
		return ArchARM
	default:
		return arch
	}
}

func normalizeOrAny(value string, normalize func(string) string) string {
	if value == "" {
		return AnyOS
	}
	return normalize(value)
}
