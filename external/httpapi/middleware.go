package httpapi

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"
)

const (
	userIDHeader = "X-User-ID"
	userIDLocal  = "user_id"
)

// requireUser trusts the identity provider in front of the service to have
// set the caller's id.
func requireUser(c *fiber.Ctx) error {
	userID := strings.TrimSpace(c.Get(userIDHeader))
	if userID == "" {
		return unauthenticated("missing " + userIDHeader + " header")
	}
	c.Locals(userIDLocal, userID)
	return c.Next()
}

func userID(c *fiber.Ctx) string {
	id, _ := c.Locals(userIDLocal).(string)
	return id
}

func requireBearer(token string) fiber.Handler {
	expected := []byte(token)
	return func(c *fiber.Ctx) error {
		scheme, presented, ok := strings.Cut(c.Get(fiber.HeaderAuthorization), " ")
		if !ok || scheme != "Bearer" || len(expected) == 0 {
			return unauthenticated("invalid authorization header")
		}
		if subtle.ConstantTimeCompare([]byte(presented), expected) != 1 {
			return unauthenticated("invalid token")
		}
		return c.Next()
	}
}
