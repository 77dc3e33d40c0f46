package controllers

import (
	"net/http"

	"github.com/angelmondragon/groceryhub-backend/api/middleware"
	"github.com/angelmondragon/groceryhub-backend/api/responses"
	"github.com/angelmondragon/groceryhub-backend/api/validators"
	"github.com/angelmondragon/groceryhub-backend/internal/auth"
	pkgerrors "github.com/angelmondragon/groceryhub-backend/pkg/errors"
	"github.com/angelmondragon/groceryhub-backend/pkg/logger"
)

// AuthLogin exchanges staff credentials for an access and refresh token pair.
func AuthLogin(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "auth service unavailable"))
			return
		}

		var body auth.LoginRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		result, err := svc.Login(ctx, body)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if logg != nil && result.User != nil {
			logg.Info(logg.WithUserID(ctx, result.User.ID.String()), "back-office login")
		}
		responses.WriteSuccess(w, "logged in", result)
	}
}

// AuthMe returns the profile of the authenticated user.
func AuthMe(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		principal, ok := middleware.PrincipalFromContext(ctx)
		switch {
		case svc == nil:
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "auth service unavailable"))
			return
		case !ok:
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
			return
		}

		user, err := svc.Me(ctx, principal.UserID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, "current user", user)
	}
}
