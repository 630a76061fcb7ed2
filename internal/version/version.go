// ABOUTME: Version and product identification
// ABOUTME: Reported by the host and scope binaries at startup
package version

const (
	// Version is the release version, for release builds
	Version = "0.3.0"

	// Product is the name shown in logs and the scope header
	Product = "nanometers"
)

// String returns "Product Version"
func String() string {
	return Product + " " + Version
}
