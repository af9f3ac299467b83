package model

import (
	"net/netip"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Sentinels used when unknown identities are pooled into one cluster bucket.
const (
	UnknownIP     = "0.0.0.0"
	UnknownDevice = "unknown"
)

// Identity is the network address and device fingerprint a confirmation
// arrived with. Empty fields mean the client did not report them.
type Identity struct {
	IP       string
	DeviceID string
}

// NewIdentity returns the normalized identity for the raw values.
func NewIdentity(ip, deviceID string) Identity {
	return Identity{IP: NormalizeIP(ip), DeviceID: NormalizeDeviceID(deviceID)}
}

// NormalizeIP canonicalizes an address so that textual variants of the same
// address ("::ffff:10.0.0.1", " 10.0.0.1") compare equal. Strings that do not
// parse as an address are kept, trimmed and lowercased.
func NormalizeIP(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	if addr, err := netip.ParseAddr(s); err == nil {
		return addr.Unmap().String()
	}
	return strings.ToLower(norm.NFC.String(s))
}

// NormalizeDeviceID NFC-normalizes and lowercases a device identifier.
// Advertising ids are case-insensitive; visually identical ids must not
// split a cluster.
func NormalizeDeviceID(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	return strings.ToLower(norm.NFC.String(s))
}
