// Package derive computes every value spec §4.2 calls "deterministic":
// origin canonicalization, epoch/window arithmetic, policy extraction, and
// the salt/nullifier/idempotency-key/grace/channel-binding/HTTP-context
// hashes built on top of internal/brasscrypto's H3.
package derive

import (
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/idna"

	"github.com/tomjwxf/brass-proof-public/internal/brasserr"
)

// CanonicalizeOrigin enforces spec §4.2's origin canonicalization
// contract: lowercase scheme/host, IDNA-to-ASCII the host, https-only, no
// userinfo/path/query/fragment, no trailing host dots, default port 443
// omitted, IPv6 literals normalized inside brackets. It is a security
// boundary: two inputs differing only in these respects must canonicalize
// identically (testable property 3), and distinct origins must not
// collide (testable property 4).
func CanonicalizeOrigin(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", brasserr.New(brasserr.InvalidOrigin)
	}
	if u.User != nil {
		return "", brasserr.New(brasserr.OriginMustNotHavePath)
	}
	if u.Path != "" && u.Path != "/" || u.RawQuery != "" || u.Fragment != "" {
		return "", brasserr.New(brasserr.OriginMustNotHavePath)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "https" {
		return "", brasserr.New(brasserr.OriginMustBeHTTPS)
	}

	host := strings.ToLower(u.Hostname())
	host = strings.TrimRight(host, ".")
	if host == "" {
		return "", brasserr.New(brasserr.InvalidHostname)
	}

	var canonHost string
	if ip := net.ParseIP(strings.Trim(host, "[]")); ip != nil {
		canonHost = "[" + ip.String() + "]"
	} else {
		ascii, err := idna.Lookup.ToASCII(host)
		if err != nil {
			return "", brasserr.New(brasserr.InvalidHostname)
		}
		canonHost = ascii
	}

	port := u.Port()
	out := "https://" + canonHost
	if port != "" && port != "443" {
		out += ":" + port
	}
	return out, nil
}
