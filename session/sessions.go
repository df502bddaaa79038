package session

import (
	"casework/bizerror"
	"context"
	"strings"

	"github.com/fundwit/go-commons/types"
	"github.com/gin-gonic/gin"
)

// the authenticating gateway in front of this service forwards the resolved caller in these headers
const (
	HeaderIdentityID    = "X-Identity-Id"
	HeaderIdentityName  = "X-Identity-Name"
	HeaderIdentityPerms = "X-Identity-Perms"
)

const KeySession = "Session"

func ExtractSessionFromGinContext(ctx *gin.Context) *Session {
	value, found := ctx.Get(KeySession)
	if !found {
		return &Session{Context: ctx.Request.Context()}
	}
	s0, ok := value.(*Session)
	if !ok {
		return &Session{Context: ctx.Request.Context()}
	}
	s := s0.Clone()
	s.Context = ctx.Request.Context() // trace context
	return &s
}

func GatewayIdentityFilter() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		id, err := types.ParseID(ctx.GetHeader(HeaderIdentityID))
		if err != nil || id == 0 {
			panic(bizerror.ErrUnauthenticated)
		}
		s := &Session{
			Identity: Identity{ID: id, Name: ctx.GetHeader(HeaderIdentityName)},
			Perms:    parsePerms(ctx.GetHeader(HeaderIdentityPerms)),
		}
		InjectSessionIntoGinContext(ctx, s)
		ctx.Next()
	}
}

func InjectSessionIntoGinContext(ctx *gin.Context, s *Session) {
	if s != nil {
		ctx.Set(KeySession, s)
	}
}

// Background builds a session for internal callers such as startup seeding.
func Background(name string, perms ...string) *Session {
	return &Session{Context: context.Background(), Identity: Identity{ID: 1, Name: name}, Perms: perms}
}

func parsePerms(header string) Permissions {
	perms := Permissions{}
	for _, p := range strings.Split(header, ",") {
		if p = strings.TrimSpace(p); p != "" {
			perms = append(perms, p)
		}
	}
	return perms
}
