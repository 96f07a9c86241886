package warninglist

import (
	"net/netip"
	"strconv"
	"strings"
)

type ipv6Network struct {
	canonical string
	bits      int
	words     [8]uint16
}

func newIPv6Network(prefix netip.Prefix) ipv6Network {
	return ipv6Network{
		canonical: prefix.String(),
		bits:      prefix.Bits(),
		words:     ipv6Words(prefix.Addr()),
	}
}

func ipv6Words(addr netip.Addr) [8]uint16 {
	raw := addr.As16()
	var words [8]uint16
	for i := range words {
		words[i] = uint16(raw[2*i])<<8 | uint16(raw[2*i+1])
	}
	return words
}

// contains compares the address with the network 16 bits at a time,
// masking the last partially covered group.
func (n ipv6Network) contains(words [8]uint16) bool {
	groups := (n.bits + 15) / 16
	for i := 0; i < groups; i++ {
		left := n.bits - 16*i
		if left > 16 {
			left = 16
		}
		mask := ^(uint16(0xffff) >> uint(left))
		if n.words[i]&mask != words[i]&mask {
			return false
		}
	}
	return true
}

// parseAddr accepts plain IPv4 or IPv6 addresses without zones.
func parseAddr(raw string) (netip.Addr, bool) {
	addr, err := netip.ParseAddr(raw)
	if err != nil || addr.Zone() != "" {
		return netip.Addr{}, false
	}
	return addr, true
}

// splitCIDR parses "address[/prefix]". A missing prefix means a single host.
func splitCIDR(raw string) (netip.Addr, int, bool) {
	addrPart, bitsPart, hasBits := strings.Cut(strings.TrimSpace(raw), "/")

	addr, ok := parseAddr(strings.ToLower(addrPart))
	if !ok {
		return netip.Addr{}, 0, false
	}

	maxBits := addr.BitLen()
	if !hasBits {
		return addr, maxBits, true
	}

	bits, err := strconv.Atoi(bitsPart)
	if err != nil || bits < 0 || bits > maxBits {
		return netip.Addr{}, 0, false
	}
	return addr, bits, true
}

// parseEntryCIDR validates a list entry and returns its masked prefix.
func parseEntryCIDR(raw string) (netip.Prefix, bool) {
	addr, bits, ok := splitCIDR(raw)
	if !ok {
		return netip.Prefix{}, false
	}
	prefix, err := addr.Prefix(bits)
	if err != nil {
		return netip.Prefix{}, false
	}
	return prefix, true
}

// matchCIDR returns the most specific entry that contains the queried address
// or network. Entries narrower than a queried network never match it.
func (es *EntrySet) matchCIDR(value string) (string, bool) {
	addr, queryBits, ok := splitCIDR(value)
	if !ok {
		return "", false
	}

	if addr.Is4() {
		// Every containing network of the address is tested, most specific first.
		// /0 is never probed.
		for bits := queryBits; bits >= 1; bits-- {
			prefix, err := addr.Prefix(bits)
			if err != nil {
				return "", false
			}
			needle := prefix.String()
			if _, found := es.set[needle]; found {
				return needle, true
			}
		}
		return "", false
	}

	words := ipv6Words(addr)
	best := -1
	for i, network := range es.ipv6 {
		if network.bits == 0 || network.bits > queryBits {
			continue
		}
		if best >= 0 && network.bits <= es.ipv6[best].bits {
			continue
		}
		if network.contains(words) {
			best = i
		}
	}
	if best < 0 {
		return "", false
	}
	return es.ipv6[best].canonical, true
}
