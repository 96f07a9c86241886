package warninglist

import (
	"testing"

	"warnlist/internal/domain"
)

func TestMatchCIDRIPv4(t *testing.T) {
	es := Normalize(domain.ComparisonCIDR, []string{"10.0.0.0/8", "10.1.0.0/16", "192.0.2.1"})

	cases := []struct {
		value string
		want  string
		ok    bool
	}{
		{"10.1.2.3", "10.1.0.0/16", true},
		{"10.2.3.4", "10.0.0.0/8", true},
		{"11.0.0.0", "", false},
		{"192.0.2.1", "192.0.2.1/32", true},
		{"192.0.2.2", "", false},
		{"10.1.0.0/16", "10.1.0.0/16", true},
		{"10.1.0.0/12", "10.0.0.0/8", true},
		{"10.0.0.0/4", "", false},
		{"192.0.2.0/24", "", false},
		{"10.0.0.0/40", "", false},
		{"garbage", "", false},
	}

	for _, tc := range cases {
		got, ok := es.Match(tc.value)
		if ok != tc.ok || got != tc.want {
			t.Errorf("Match(%q) = (%q, %v), want (%q, %v)", tc.value, got, ok, tc.want, tc.ok)
		}
	}
}

func TestMatchCIDRContainingNetwork(t *testing.T) {
	es := Normalize(domain.ComparisonCIDR, []string{"10.0.0.0/8"})
	if got, ok := es.Match("10.1.2.3"); !ok || got != "10.0.0.0/8" {
		t.Fatalf("Match(10.1.2.3) = (%q, %v), want 10.0.0.0/8", got, ok)
	}
	if _, ok := es.Match("11.0.0.0"); ok {
		t.Fatal("Match(11.0.0.0) should not match")
	}
}

func TestMatchCIDRZeroPrefixNeverMatches(t *testing.T) {
	es := Normalize(domain.ComparisonCIDR, []string{"0.0.0.0/0", "::/0"})
	if _, ok := es.Match("1.2.3.4"); ok {
		t.Fatal("/0 must not match IPv4 addresses")
	}
	if _, ok := es.Match("2001:db8::1"); ok {
		t.Fatal("/0 must not match IPv6 addresses")
	}
}

func TestMatchCIDRIPv6(t *testing.T) {
	es := Normalize(domain.ComparisonCIDR, []string{
		"2001:db8::/32",
		"2001:db8:abcd::/48",
		"2001:db8:abcd:12::/63",
		"10.0.0.0/8",
	})

	cases := []struct {
		value string
		want  string
		ok    bool
	}{
		{"2001:db8:abcd:0012::1", "2001:db8:abcd:12::/63", true},
		{"2001:db8:abcd:13::1", "2001:db8:abcd:12::/63", true},
		{"2001:db8:abcd:14::1", "2001:db8:abcd::/48", true},
		{"2001:db8:ffff::1", "2001:db8::/32", true},
		{"2001:db9::1", "", false},
		{"2001:db8:abcd::/40", "2001:db8::/32", true},
		{"2001:db8::/16", "", false},
		{"::ffff:10.1.2.3", "", false},
	}

	for _, tc := range cases {
		got, ok := es.Match(tc.value)
		if ok != tc.ok || got != tc.want {
			t.Errorf("Match(%q) = (%q, %v), want (%q, %v)", tc.value, got, ok, tc.want, tc.ok)
		}
	}
}

func TestIPv6NetworkContainsPartialGroup(t *testing.T) {
	prefix, ok := parseEntryCIDR("2001:db8:8000::/33")
	if !ok {
		t.Fatal("parseEntryCIDR failed")
	}
	network := newIPv6Network(prefix)

	inside, _ := parseAddr("2001:db8:ffff::1")
	outside, _ := parseAddr("2001:db8:7fff::1")
	if !network.contains(ipv6Words(inside)) {
		t.Fatal("expected 2001:db8:ffff::1 inside /33")
	}
	if network.contains(ipv6Words(outside)) {
		t.Fatal("expected 2001:db8:7fff::1 outside /33")
	}
}

func TestMatchHostname(t *testing.T) {
	es := Normalize(domain.ComparisonHostname, []string{"example.com", "b.example.com", "com.evil", "bücher.de"})

	cases := []struct {
		value string
		want  string
		ok    bool
	}{
		{"a.b.example.com", "example.com", true},
		{"example.com", "example.com", true},
		{"EXAMPLE.com.", "example.com", true},
		{"https://a.example.com/path?q=1", "example.com", true},
		{"example.com/index.html", "example.com", true},
		{"notexample.com", "", false},
		{"example.org", "", false},
		{"shop.bücher.de", "xn--bcher-kva.de", true},
		{"http://", "", false},
		{"", "", false},
	}

	for _, tc := range cases {
		got, ok := es.Match(tc.value)
		if ok != tc.ok || got != tc.want {
			t.Errorf("Match(%q) = (%q, %v), want (%q, %v)", tc.value, got, ok, tc.want, tc.ok)
		}
	}
}

func TestMatchSubstringFirstInStorageOrder(t *testing.T) {
	es := Normalize(domain.ComparisonSubstring, []string{"evil", "evil.example"})
	if got, ok := es.Match("www.evil.example"); !ok || got != "evil" {
		t.Fatalf("Match = (%q, %v), want first entry evil", got, ok)
	}

	reordered := Normalize(domain.ComparisonSubstring, []string{"evil.example", "evil"})
	if got, ok := reordered.Match("www.evil.example"); !ok || got != "evil.example" {
		t.Fatalf("Match = (%q, %v), want first entry evil.example", got, ok)
	}
}

func TestMatchRegex(t *testing.T) {
	es := Normalize(domain.ComparisonRegex, []string{`/^foo\d+$/i`, `bar`, `#^baz#`})

	cases := []struct {
		value string
		want  string
		ok    bool
	}{
		{"FOO12", `/^foo\d+$/i`, true},
		{"foobar", `bar`, true},
		{"baz-1", `#^baz#`, true},
		{"qux", "", false},
	}
	for _, tc := range cases {
		got, ok := es.Match(tc.value)
		if ok != tc.ok || got != tc.want {
			t.Errorf("Match(%q) = (%q, %v), want (%q, %v)", tc.value, got, ok, tc.want, tc.ok)
		}
	}
}

func TestMatchRegexUndelimitedPatterns(t *testing.T) {
	es := Normalize(domain.ComparisonRegex, []string{`.*\.example\.com`, `(www\.)?evil\.org`, `/evil\.net$/i`})
	if got := es.Values(); len(got) != 3 {
		t.Fatalf("regex Values() = %v, want all three patterns kept", got)
	}

	cases := map[string]string{
		"cdn.example.com": `.*\.example\.com`,
		"evil.org":        `(www\.)?evil\.org`,
		"WWW.EVIL.NET":    `/evil\.net$/i`,
	}
	for value, want := range cases {
		if got, ok := es.Match(value); !ok || got != want {
			t.Errorf("Match(%q) = (%q, %v), want %q", value, got, ok, want)
		}
	}
}

func TestCheckValueComposite(t *testing.T) {
	es := Normalize(domain.ComparisonString, []string{"deadbeef"})

	got, ok := CheckValue(es, "malware-sample", "evil.exe|deadbeef")
	if !ok {
		t.Fatal("expected hash part to match")
	}
	if got.Entry != "deadbeef" || got.Value != "deadbeef" {
		t.Fatalf("CheckValue = %+v", got)
	}

	if _, ok := CheckValue(es, "filename|md5", "deadbeef|0000"); !ok {
		t.Fatal("expected first part of filename|md5 to match")
	}

	if _, ok := CheckValue(es, "md5", "evil.exe|deadbeef"); ok {
		t.Fatal("non-composite types must not be split")
	}
}

func TestCheckValueCompositeSkipsUnparsablePart(t *testing.T) {
	es := Normalize(domain.ComparisonCIDR, []string{"10.0.0.0/8"})
	got, ok := CheckValue(es, "ip-dst|port", "not-an-ip|10.9.9.9")
	if !ok || got.Value != "10.9.9.9" {
		t.Fatalf("CheckValue = (%+v, %v), want match on second part", got, ok)
	}
}

func TestStringReflexivity(t *testing.T) {
	raw := []string{"8.8.8.8", " spaced ", "UPPER", "a|b", "ünïcode"}
	es := Normalize(domain.ComparisonString, raw)
	for _, v := range raw {
		got, ok := es.Match(v)
		if !ok || got != v {
			t.Errorf("Match(%q) = (%q, %v), want itself", v, got, ok)
		}
	}
}

func TestQuickCheck(t *testing.T) {
	if !QuickCheck(domain.ComparisonHostname, []string{"example.com"}, "www.example.com") {
		t.Fatal("QuickCheck hostname should match")
	}
	if QuickCheck(domain.ComparisonCIDR, []string{"10.0.0.0/8"}, "172.16.0.1") {
		t.Fatal("QuickCheck cidr should not match")
	}
}
