package vmsync

import (
	"fmt"
	"net/netip"
	"strings"

	"vmsync/core/netbox"
)

// ResolveVM matches a source persistent id against the mirror index. It
// returns nil when no record exists, the single match when exactly one
// does, and a DuplicateIdentityError when the id is ambiguous.
func ResolveVM(persistentID string, mirrorsByPersistentID map[string][]netbox.VirtualMachine) (*netbox.VirtualMachine, error) {
	matches := mirrorsByPersistentID[persistentID]
	switch len(matches) {
	case 0:
		return nil, nil
	case 1:
		return &matches[0], nil
	default:
		return nil, &DuplicateIdentityError{
			Kind:  "virtual machine",
			Key:   persistentID,
			Count: len(matches),
		}
	}
}

// CanonicalAddress normalizes a guest-reported address to its canonical
// CIDR form: bare IPv4 gains /32, bare IPv6 gains /128, an address that
// already carries a prefix passes through unchanged. Anything else is a
// DataMappingError and the single address is skipped.
func CanonicalAddress(addr string) (string, error) {
	if prefix, err := netip.ParsePrefix(addr); err == nil {
		return prefix.String(), nil
	}

	ip, err := netip.ParseAddr(addr)
	if err != nil {
		return "", &DataMappingError{
			Field:  "ip address",
			Value:  addr,
			Reason: "unrecognized address family",
		}
	}

	if ip.Is4() {
		return fmt.Sprintf("%s/32", ip), nil
	}
	return fmt.Sprintf("%s/128", ip), nil
}

// shortHostname returns the first label of a guest host name, the token
// the sync stamps into IP descriptions.
func shortHostname(hostname string) string {
	if i := strings.IndexByte(hostname, '.'); i > 0 {
		return hostname[:i]
	}
	return hostname
}
