package testinfra

import (
	"casework/session"
	"context"
	"strconv"

	"github.com/fundwit/go-commons/types"
)

func BuildSession(id types.ID, perms ...string) *session.Session {
	return &session.Session{
		Context:  context.Background(),
		Identity: session.Identity{ID: id, Name: "user" + strconv.FormatUint(uint64(id), 10)},
		Perms:    append(session.Permissions{}, perms...),
	}
}
