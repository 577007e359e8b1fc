package identity

// LandingRoute is the canonical route a freshly authenticated identity is
// sent to. The mapping is total over the role enum.
func (r Role) LandingRoute() string {
	switch r {
	case RoleAdmin:
		return "/admin"
	case RoleProjectManager:
		return "/projects"
	case RoleTeamMember:
		return "/my-work"
	case RoleFinance:
		return "/finance"
	default:
		// Unreachable for verified claims; unknown roles fail verification.
		return "/login"
	}
}

// RoutePrefixes lists the route prefixes a role may navigate under. The
// landing route is always the first entry.
func (r Role) RoutePrefixes() []string {
	switch r {
	case RoleAdmin:
		return []string{"/admin", "/projects", "/my-work", "/finance", "/settings"}
	case RoleProjectManager:
		return []string{"/projects", "/my-work"}
	case RoleTeamMember:
		return []string{"/my-work"}
	case RoleFinance:
		return []string{"/finance"}
	default:
		return nil
	}
}
