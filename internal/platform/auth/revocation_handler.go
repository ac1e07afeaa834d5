package auth

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

const defaultRevocationTTL = time.Hour

type revokeTokenRequest struct {
	JTI       string    `json:"jti"`
	ExpiresAt time.Time `json:"expires_at"`
	UserID    string    `json:"user_id,omitempty"`
}

type revokeUserRequest struct {
	UserID string `json:"user_id"`
}

type revokeUserResponse struct {
	UserID      string    `json:"user_id"`
	RevokedFrom time.Time `json:"revoked_from"`
}

type revocationListResponse struct {
	Count   int              `json:"count"`
	Entries []RevocationInfo `json:"entries"`
}

// RegisterRevocationRoutes mounts the token revocation endpoints under
// /auth. Only master admins may use them.
func RegisterRevocationRoutes(g *echo.Group, store *TokenRevocationStore) {
	authGroup := g.Group("/auth", RequireRole(RoleMasterAdmin))
	authGroup.POST("/revoke", handleRevokeToken(store))
	authGroup.POST("/revoke-user", handleRevokeUser(store))
	authGroup.GET("/revocations", handleListRevocations(store))
}

func handleRevokeToken(store *TokenRevocationStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req revokeTokenRequest
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
		}
		if req.JTI == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "jti is required")
		}
		if req.ExpiresAt.IsZero() {
			req.ExpiresAt = time.Now().Add(defaultRevocationTTL)
		}
		store.Revoke(req.JTI, req.UserID, req.ExpiresAt)
		return c.NoContent(http.StatusNoContent)
	}
}

func handleRevokeUser(store *TokenRevocationStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req revokeUserRequest
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
		}
		if req.UserID == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "user_id is required")
		}
		at := store.RevokeUser(req.UserID)
		return c.JSON(http.StatusOK, revokeUserResponse{UserID: req.UserID, RevokedFrom: at})
	}
}

func handleListRevocations(store *TokenRevocationStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		entries := store.Entries()
		return c.JSON(http.StatusOK, revocationListResponse{Count: len(entries), Entries: entries})
	}
}
