package service

import (
	"errors"

	"github.com/serendip/gatekeeper/internal/core/domain"
)

// upstream passes domain errors through and wraps anything else.
func upstream(err error) error {
	var de *domain.Error
	if errors.As(err, &de) {
		return err
	}
	return domain.Upstream(err)
}
