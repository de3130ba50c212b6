package render

import (
	"fmt"
	"strings"

	"buildit/internal/config"
)

// WSLConf renders /etc/wsl.conf: init system and filesystem mount
// options for the distro.
func WSLConf(cfg config.WSLConfig) []byte {
	var b strings.Builder

	b.WriteString("[boot]\n")
	fmt.Fprintf(&b, "systemd=%t\n", cfg.Systemd)
	b.WriteString("\n[automount]\n")
	b.WriteString("enabled=true\n")
	fmt.Fprintf(&b, "root=%s\n", cfg.AutomountRoot)
	fmt.Fprintf(&b, "options=\"%s\"\n", cfg.AutomountOptions)

	return []byte(b.String())
}

// WSLConfig renders the Windows-side .wslconfig: networking mode, DNS
// behavior, and firewall flags for the VM.
func WSLConfig(cfg config.WSLConfig) []byte {
	var b strings.Builder

	b.WriteString("[wsl2]\n")
	fmt.Fprintf(&b, "networkingMode=%s\n", cfg.NetworkingMode)
	fmt.Fprintf(&b, "dnsTunneling=%t\n", cfg.DNSTunneling)
	fmt.Fprintf(&b, "firewall=%t\n", cfg.Firewall)
	fmt.Fprintf(&b, "autoProxy=%t\n", cfg.AutoProxy)

	return []byte(b.String())
}
