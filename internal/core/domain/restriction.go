package domain

// RestrictionRule is an access-control statement scoped to a controller and
// endpoint. An empty ControllerName is the global rule; an empty Endpoint
// applies to the whole controller.
//
// With AllowAll the group list is a block-list, otherwise it is a
// require-list. Users listed in Users bypass the rule either way.
type RestrictionRule struct {
	ControllerName string   `json:"controllerName"`
	Endpoint       string   `json:"endpoint"`
	AllowAll       bool     `json:"allowAll"`
	Groups         []string `json:"groups"`
	Users          []string `json:"users"`
}

// RuleKey identifies the scope of a rule.
type RuleKey struct {
	ControllerName string
	Endpoint       string
}

// Key returns the scope of r.
func (r RestrictionRule) Key() RuleKey {
	return RuleKey{ControllerName: r.ControllerName, Endpoint: r.Endpoint}
}

// Permits reports whether the rule lets user through.
func (r RestrictionRule) Permits(user *User) bool {
	for _, id := range r.Users {
		if id == user.ID {
			return true
		}
	}

	overlap := false
	for _, g := range r.Groups {
		if user.InGroup(g) {
			overlap = true
			break
		}
	}

	if r.AllowAll {
		return !overlap
	}
	return overlap
}
