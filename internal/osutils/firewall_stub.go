//go:build !windows

package osutils

// IsAdmin reports elevated privileges; only meaningful on Windows.
func IsAdmin() bool {
	return false
}

// EnsureFirewallRule is a no-op outside Windows; macOS and Linux don't
// block inbound LAN connections for user processes by default.
func EnsureFirewallRule(port int) error {
	return nil
}
