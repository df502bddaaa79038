package session

import (
	"context"
	"strings"

	"github.com/fundwit/go-commons/types"
)

const (
	RoleAdmin = "admin"
	RoleClerk = "clerk"
)

type Session struct {
	Context context.Context `json:"-"`

	Identity Identity    `json:"identity"`
	Perms    Permissions `json:"perms"`
}

type Identity struct {
	ID   types.ID `json:"id"`
	Name string   `json:"name"`
}

type Permissions []string

func (c Permissions) HasRole(role string) bool {
	for _, v := range c {
		if strings.EqualFold(v, role) {
			return true
		}
	}
	return false
}

func (s *Session) IsAdmin() bool {
	return s != nil && s.Perms.HasRole(RoleAdmin)
}

func (s *Session) Clone() Session {
	perms := make(Permissions, len(s.Perms))
	copy(perms, s.Perms)
	return Session{Context: s.Context, Identity: s.Identity, Perms: perms}
}
