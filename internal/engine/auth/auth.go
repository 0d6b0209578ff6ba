// Package auth decides what an authenticated principal may do. Roles come
// from the token; the permissions behind each role come from crowdfill.yml.
package auth

import (
	"fmt"
	"strings"

	"crowdfill/internal/config"
)

// ForbiddenError indicates missing permission.
type ForbiddenError struct {
	Permission string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("permission %s required", e.Permission)
}

// Principal is the caller behind a request.
type Principal struct {
	ActorID     string   `json:"actor_id"`
	TeamID      string   `json:"team_id,omitempty"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
	Source      string   `json:"source,omitempty"`
}

// Has reports whether the principal holds perm. "*" grants everything and
// "job.*" grants every job permission.
func (p Principal) Has(perm string) bool {
	for _, granted := range p.Permissions {
		switch {
		case granted == "*", granted == perm:
			return true
		case strings.HasSuffix(granted, ".*") && strings.HasPrefix(perm, strings.TrimSuffix(granted, "*")):
			return true
		}
	}
	return false
}

func (p Principal) Require(perm string) error {
	if p.Has(perm) {
		return nil
	}
	return ForbiddenError{Permission: perm}
}

// Service expands roles into permissions.
type Service struct {
	Config *config.Config
}

// Resolve adds the permissions of p's roles to the ones it already carries.
func (s Service) Resolve(p Principal) Principal {
	if s.Config == nil {
		return p
	}
	seen := map[string]struct{}{}
	var perms []string
	for _, perm := range append(append([]string(nil), p.Permissions...), s.Config.Permissions(p.Roles)...) {
		if _, dup := seen[perm]; dup {
			continue
		}
		seen[perm] = struct{}{}
		perms = append(perms, perm)
	}
	p.Permissions = perms
	return p
}
