package warninglist

import (
	"strings"
	"unicode/utf8"

	"github.com/miekg/dns"
	"golang.org/x/net/idna"
)

// normalizeHostname lower-cases the value and strips surrounding dots.
// Internationalized names are stored in their punycode form when possible.
func normalizeHostname(raw string) string {
	host := strings.Trim(strings.TrimSpace(raw), ".")
	if host == "" {
		return ""
	}
	host = strings.ToLower(host)
	if !isASCII(host) {
		if ascii, err := idna.Punycode.ToASCII(host); err == nil {
			host = strings.ToLower(ascii)
		}
	}
	return host
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// hostnameOf extracts the host part of a bare hostname or URL-like value.
func hostnameOf(value string) string {
	if strings.Contains(value, "//") {
		parts := strings.SplitN(value, "/", 4)
		if len(parts) < 3 {
			return ""
		}
		return parts[2]
	}
	host, _, _ := strings.Cut(value, "/")
	return host
}

// matchHostname tests the domain suffixes of the value, shortest first.
func (es *EntrySet) matchHostname(value string) (string, bool) {
	host := hostnameOf(value)
	host = strings.TrimRight(host, ".")
	if host == "" {
		return "", false
	}
	host = normalizeHostname(host)

	labels := dns.SplitDomainName(host)
	if len(labels) == 0 {
		return "", false
	}

	rebuilt := ""
	for i := len(labels) - 1; i >= 0; i-- {
		if rebuilt == "" {
			rebuilt = labels[i]
		} else {
			rebuilt = labels[i] + "." + rebuilt
		}
		if _, found := es.set[rebuilt]; found {
			return rebuilt, true
		}
	}
	return "", false
}
