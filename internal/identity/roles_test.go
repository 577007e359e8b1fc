package identity

import "testing"

func TestParseRole(t *testing.T) {
	for _, r := range Roles() {
		parsed, ok := ParseRole(string(r))
		if !ok || parsed != r {
			t.Fatalf("ParseRole(%q) = %q, %v", r, parsed, ok)
		}
	}

	for _, bad := range []string{"", "ADMIN", "superuser", "Admin "} {
		if _, ok := ParseRole(bad); ok {
			t.Fatalf("ParseRole(%q) unexpectedly succeeded", bad)
		}
	}
}

func TestLandingRouteIsTotal(t *testing.T) {
	seen := map[string]Role{}
	for _, r := range Roles() {
		route := r.LandingRoute()
		if route == "" || route == "/login" {
			t.Fatalf("role %q has no landing route", r)
		}
		if prev, dup := seen[route]; dup {
			t.Fatalf("roles %q and %q share landing route %q", prev, r, route)
		}
		seen[route] = r

		prefixes := r.RoutePrefixes()
		if len(prefixes) == 0 || prefixes[0] != route {
			t.Fatalf("role %q prefixes %v do not lead with landing route %q", r, prefixes, route)
		}
	}
}
