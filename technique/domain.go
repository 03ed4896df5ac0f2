package technique

import (
	"path/filepath"
	"strings"
)

// Domain is the script language a technique or an input belongs to.
type Domain string

const (
	PowerShell Domain = "powershell"
	Python     Domain = "python"
)

// Extension returns the file extension used for scripts of the domain.
func (d Domain) Extension() string {
	switch d {
	case Python:
		return ".py"
	default:
		return ".ps1"
	}
}

// DomainFromPath infers the domain from a file extension (.ps1 or .py,
// case-insensitive).
func DomainFromPath(path string) (Domain, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ps1":
		return PowerShell, true
	case ".py":
		return Python, true
	default:
		return "", false
	}
}

// ParseDomain accepts "powershell", "ps1", "python" or "py".
func ParseDomain(s string) (Domain, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "powershell", "ps1", "ps":
		return PowerShell, true
	case "python", "py":
		return Python, true
	default:
		return "", false
	}
}
