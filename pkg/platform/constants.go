// Package platform describes the host an installation targets and decides which
// published artifacts are compatible with it.
package platform

// Canonical OS and architecture names, as produced by NormalizeOS and NormalizeArch.
const (
	OSWindows = "windows"
	OSLinux   = "linux"
	OSDarwin  = "darwin"

	ArchAMD64 = "amd64"
	Arch386   = "386"
	ArchARM   = "arm"
	ArchARM64 = "arm64"

	// AnyOS and AnyArch mark artifacts that run everywhere. An empty value means the same.
	AnyOS   = "any"
	AnyArch = "any"
)

var (
	knownOS   = []string{OSWindows, OSLinux, OSDarwin, "freebsd", "openbsd", "netbsd", AnyOS}
	knownArch = []string{ArchAMD64, Arch386, ArchARM, ArchARM64, "riscv64", "ppc64le", "s390x", AnyArch}
)

// ValidOS lists the OS values accepted in the platform settings.
func ValidOS() []string {
	return append([]string(nil), knownOS...)
}

// ValidArch lists the architecture values accepted in the platform settings.
func ValidArch() []string {
	return append([]string(nil), knownArch...)
}
