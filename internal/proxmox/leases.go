// ABOUTME: Host-side DHCP lease parsing used as a fallback for guest IP discovery.
// Supports dnsmasq single-line leases and ISC dhcpd lease blocks, keyed on the
// container's MAC addresses from pct config.
package proxmox

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

func (b *ShellBackend) dhcpLeaseIP(ctx context.Context, ctid CTID) (string, error) {
	cfg, err := b.Config(ctx, ctid)
	if err != nil {
		return "", err
	}
	macs := configMACs(cfg)
	if len(macs) == 0 {
		return "", fmt.Errorf("%w: no MAC addresses found", ErrGuestIPNotFound)
	}
	leaseFiles := b.leasePaths()
	if len(leaseFiles) == 0 {
		return "", fmt.Errorf("%w: no DHCP lease files configured", ErrGuestIPNotFound)
	}
	var readErr error
	for _, path := range leaseFiles {
		content, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			readErr = err
			continue
		}
		if ip := findLeaseIP(content, macs); ip != "" {
			return ip, nil
		}
	}
	if readErr != nil {
		return "", readErr
	}
	return "", ErrGuestIPNotFound
}

func (b *ShellBackend) leasePaths() []string {
	paths := b.DHCPLeasePaths
	if len(paths) == 0 {
		paths = []string{
			"/var/lib/misc/dnsmasq.leases",
			"/var/lib/dnsmasq/dnsmasq.leases",
			"/var/lib/misc/dnsmasq.*.leases",
			"/var/lib/misc/dnsmasq*.leases",
			"/var/lib/dhcp/dhcpd.leases",
			"/var/lib/dhcp/dhcpd.leases~",
			"/var/lib/dhcp3/dhcpd.leases",
			"/var/lib/pve-firewall/dhcpd.leases",
		}
	}
	expanded := make([]string, 0, len(paths))
	seen := map[string]struct{}{}
	for _, path := range paths {
		if hasGlob(path) {
			matches, err := filepath.Glob(path)
			if err != nil {
				continue
			}
			for _, match := range matches {
				if _, ok := seen[match]; ok {
					continue
				}
				seen[match] = struct{}{}
				expanded = append(expanded, match)
			}
			continue
		}
		if _, ok := seen[path]; ok {
			continue
		}
		seen[path] = struct{}{}
		expanded = append(expanded, path)
	}
	sort.Strings(expanded)
	return expanded
}

func hasGlob(path string) bool {
	return strings.ContainsAny(path, "*?[")
}

// configMACs extracts MAC addresses from container netN config lines.
// pct config emits lines like
// "net0: name=eth0,bridge=vmbr0,hwaddr=BC:24:11:AB:CD:EF,ip=dhcp".
func configMACs(cfg map[string]string) []string {
	var macs []string
	keys := make([]string, 0, len(cfg))
	for key := range cfg {
		if strings.HasPrefix(key, "net") {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	for _, key := range keys {
		for _, field := range strings.Split(cfg[key], ",") {
			kv := strings.SplitN(strings.TrimSpace(field), "=", 2)
			if len(kv) != 2 {
				continue
			}
			mac := strings.TrimSpace(kv[1])
			if isMAC(mac) {
				macs = append(macs, normalizeMAC(mac))
			}
		}
	}
	return uniqueStrings(macs)
}

func findLeaseIP(content []byte, macs []string) string {
	if len(macs) == 0 || len(content) == 0 {
		return ""
	}
	macset := make(map[string]struct{}, len(macs))
	for _, mac := range macs {
		macset[normalizeMAC(mac)] = struct{}{}
	}
	if ip := findDNSMasqLease(content, macset); ip != "" {
		return ip
	}
	return findDHCPDLease(content, macset)
}

func findDNSMasqLease(content []byte, macset map[string]struct{}) string {
	var found string
	for _, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		mac := normalizeMAC(fields[1])
		if _, ok := macset[mac]; !ok {
			continue
		}
		if ip := parseIPv4(fields[2]); ip != "" {
			found = ip
		}
	}
	return found
}

func findDHCPDLease(content []byte, macset map[string]struct{}) string {
	var found string
	var currentIP string
	var currentMAC string
	inLease := false
	active := true
	bindingSeen := false
	for _, raw := range strings.Split(string(content), "\n") {
		line := strings.TrimSpace(raw)
		if strings.HasPrefix(line, "lease ") && strings.Contains(line, "{") {
			fields := strings.Fields(line)
			if len(fields) >= 2 {
				currentIP = fields[1]
				currentMAC = ""
				active = true
				bindingSeen = false
				inLease = true
			}
			continue
		}
		if !inLease {
			continue
		}
		if strings.HasPrefix(line, "hardware ethernet ") {
			fields := strings.Fields(line)
			if len(fields) >= 3 {
				currentMAC = normalizeMAC(strings.TrimSuffix(fields[2], ";"))
			}
			continue
		}
		if strings.HasPrefix(line, "binding state ") {
			bindingSeen = true
			active = strings.Contains(line, "active")
			continue
		}
		if line == "}" {
			if currentIP != "" && currentMAC != "" {
				if _, ok := macset[currentMAC]; ok && (!bindingSeen || active) {
					if ip := parseIPv4(currentIP); ip != "" {
						found = ip
					}
				}
			}
			inLease = false
		}
	}
	return found
}

// parseIPv4 returns value as a dotted-quad string if it is a valid IPv4
// address, or "" otherwise.
func parseIPv4(value string) string {
	ip := net.ParseIP(strings.TrimSpace(value))
	if ip == nil {
		return ""
	}
	ip = ip.To4()
	if ip == nil {
		return ""
	}
	return ip.String()
}

func normalizeMAC(mac string) string {
	return strings.ToLower(strings.TrimSpace(mac))
}

func isMAC(value string) bool {
	_, err := net.ParseMAC(value)
	return err == nil
}

func uniqueStrings(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := map[string]struct{}{}
	out := make([]string, 0, len(values))
	for _, value := range values {
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}
