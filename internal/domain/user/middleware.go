package user

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Drewww17/m2-sa-luminarias/internal/platform/auth"
)

const profileKey = "profile"

// ProfileFromContext returns the profile loaded by LoadProfile, or nil.
func ProfileFromContext(c echo.Context) *Profile {
	p, _ := c.Get(profileKey).(*Profile)
	return p
}

// LoadProfile attaches the caller's stored profile and replaces the token
// roles with the profile's effective roles. Callers without a profile lose
// their token roles unless trustTokenRoles is set (development only).
func LoadProfile(repo Repository, trustTokenRoles bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			uid := auth.UserIDFromContext(ctx)
			if uid == "" {
				return next(c)
			}

			p, err := repo.GetByID(ctx, uid)
			switch {
			case err == nil:
				c.Set(profileKey, p)
				ctx = auth.WithRoles(ctx, p.Roles())
			case errors.Is(err, ErrNotFound):
				if !trustTokenRoles {
					ctx = auth.WithRoles(ctx, nil)
				}
			default:
				return echo.NewHTTPError(http.StatusInternalServerError, "failed to load profile")
			}
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

// RequireApproved rejects callers without a profile and doctors whose
// account is not approved yet.
func RequireApproved() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p := ProfileFromContext(c)
			if p == nil {
				if auth.HasRole(auth.RolesFromContext(c.Request().Context()), auth.RoleAdmin) {
					return next(c)
				}
				return echo.NewHTTPError(http.StatusForbidden, "profile not registered")
			}
			if p.Role == auth.RoleDoctor && p.ApprovalStatus != ApprovalApproved {
				return echo.NewHTTPError(http.StatusForbidden, "pending approval")
			}
			return next(c)
		}
	}
}
