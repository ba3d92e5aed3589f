//go:build windows

package osutils

import (
	"fmt"
	"os/exec"
	"strings"
	"syscall"

	"github.com/rs/zerolog/log"
	"golang.org/x/sys/windows"
)

// IsAdmin checks if the current process has administrative privileges.
func IsAdmin() bool {
	var token windows.Token
	h, _ := windows.GetCurrentProcess()
	err := windows.OpenProcessToken(h, windows.TOKEN_QUERY, &token)
	if err != nil {
		return false
	}
	defer token.Close()

	var sid *windows.SID
	err = windows.AllocateAndInitializeSid(
		&windows.SECURITY_NT_AUTHORITY,
		2,
		windows.SECURITY_BUILTIN_DOMAIN_RID,
		windows.DOMAIN_ALIAS_RID_ADMINS,
		0, 0, 0, 0, 0, 0,
		&sid,
	)
	if err != nil {
		return false
	}
	defer windows.FreeSid(sid)

	member, err := token.IsMember(sid)
	if err != nil {
		return false
	}
	return member
}

// EnsureFirewallRule checks if an inbound firewall rule for the relay
// port exists, and if not, attempts to create it using PowerShell with
// admin elevation. Without the rule phones on the LAN cannot reach the
// relay at all.
func EnsureFirewallRule(port int) error {
	ruleName := "Whooshpad Relay"

	log.Info().Str("rule", ruleName).Int("port", port).Msg("checking firewall rule")

	checkCmd := exec.Command("netsh", "advfirewall", "firewall", "show", "rule", "name="+ruleName)
	output, err := checkCmd.CombinedOutput()
	outputStr := string(output)

	if err == nil && strings.Contains(outputStr, ruleName) {
		portStr := fmt.Sprintf("%d", port)
		if strings.Contains(outputStr, portStr) && strings.Contains(outputStr, "Allow") {
			log.Info().Str("rule", ruleName).Msg("firewall rule already in place")
			return nil
		}
		log.Info().Str("rule", ruleName).Msg("firewall rule exists but port/action mismatch, updating")
	} else {
		log.Info().Str("rule", ruleName).Msg("firewall rule not found, creating")
	}

	// No -Program restriction so the rule survives binary relocation.
	psCommand := fmt.Sprintf(
		"Remove-NetFirewallRule -DisplayName '%s' -ErrorAction SilentlyContinue; New-NetFirewallRule -DisplayName '%s' -Direction Inbound -LocalPort %d -Protocol TCP -Action Allow -Profile Any",
		ruleName, ruleName, port,
	)

	if IsAdmin() {
		cmd := exec.Command("powershell", "-NoProfile", "-Command", psCommand)
		cmd.SysProcAttr = &syscall.SysProcAttr{HideWindow: true}
		if out, err := cmd.CombinedOutput(); err != nil {
			return fmt.Errorf("failed to create firewall rule: %v (%s)", err, string(out))
		}
		return nil
	}

	// Not elevated: trigger UAC through PowerShell's RunAs verb.
	elevated := fmt.Sprintf(
		"Start-Process powershell -Verb RunAs -WindowStyle Hidden -ArgumentList '-NoProfile','-Command',\"%s\"",
		strings.ReplaceAll(psCommand, `"`, "`\""),
	)
	cmd := exec.Command("powershell", "-NoProfile", "-Command", elevated)
	cmd.SysProcAttr = &syscall.SysProcAttr{HideWindow: true}
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("failed to elevate for firewall rule: %v (%s)", err, string(out))
	}
	return nil
}
