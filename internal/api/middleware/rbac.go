package middleware

import (
	"github.com/serendip/gatekeeper/internal/api/pipeline"
	"github.com/serendip/gatekeeper/internal/core/domain"
)

// RequireGroup is a pipeline stage that lets members of any of groups
// through and aborts with domain.ErrGroupAccessDenied otherwise.
func RequireGroup(groups ...string) pipeline.Stage {
	return requireGroup(domain.ErrGroupAccessDenied, groups...)
}

// RequireAdmin is RequireGroup for the admin group, failing with
// domain.ErrAdminRequired.
func RequireAdmin() pipeline.Stage {
	return requireGroup(domain.ErrAdminRequired, domain.GroupAdmin)
}

func requireGroup(denied error, groups ...string) pipeline.Stage {
	allowed := make(map[string]struct{}, len(groups))
	for _, g := range groups {
		allowed[g] = struct{}{}
	}

	return func(c *pipeline.Context, next pipeline.Next, _ pipeline.Done) {
		if c.User == nil {
			next(domain.ErrMissingToken)
			return
		}
		for _, g := range c.User.Groups {
			if _, ok := allowed[g]; ok {
				next()
				return
			}
		}
		next(denied)
	}
}
