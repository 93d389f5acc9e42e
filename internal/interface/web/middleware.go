package web

import (
	"github.com/gin-gonic/gin"

	"github.com/retrofund/retrofund/internal/core/application"
	"github.com/retrofund/retrofund/internal/core/domain"
)

const (
	userIdHeader        = "X-User-ID"
	walletAddressHeader = "X-Wallet-Address"

	identityKey = "identity"
)

// identityMiddleware lifts the already-authenticated caller out of the
// headers set by the auth collaborator in front of this service.
// Anonymous requests carry an empty identity.
func identityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(identityKey, application.Identity{
			UserId:        c.GetHeader(userIdHeader),
			WalletAddress: domain.NormalizeAddress(c.GetHeader(walletAddressHeader)),
		})
		c.Next()
	}
}

func identityFrom(c *gin.Context) application.Identity {
	identity, _ := c.Get(identityKey)
	id, _ := identity.(application.Identity)
	return id
}

func requireIdentity(c *gin.Context) (application.Identity, bool) {
	id := identityFrom(c)
	if len(id.UserId) <= 0 {
		writeError(c, domain.NewAuthorizationError("missing %s header", userIdHeader))
		return id, false
	}
	return id, true
}
