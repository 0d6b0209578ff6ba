package auth

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"crowdfill/internal/config"
)

func TestResolveExpandsRoles(t *testing.T) {
	svc := Service{Config: config.Default()}
	p := svc.Resolve(Principal{ActorID: "w1", Roles: []string{"Worker"}, Permissions: []string{"event.read"}})
	assert.True(t, p.Has("claim.create"))
	assert.True(t, p.Has("event.read"))
	assert.False(t, p.Has("claim.review"))

	err := p.Require("job.cancel")
	var fe ForbiddenError
	assert.True(t, errors.As(err, &fe))
	assert.Equal(t, "job.cancel", fe.Permission)
}

func TestWildcards(t *testing.T) {
	assert.True(t, Principal{Permissions: []string{"*"}}.Has("credibility.write"))
	assert.True(t, Principal{Permissions: []string{"job.*"}}.Has("job.cancel"))
	assert.False(t, Principal{Permissions: []string{"job.*"}}.Has("jobs.cancel"))
	assert.False(t, Principal{}.Has("job.read"))
}
