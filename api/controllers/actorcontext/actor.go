package actorcontext

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-backend/api/middleware"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
)

// Actor is the authenticated caller as seeded by the auth middleware.
type Actor struct {
	UserID  uuid.UUID
	Role    enums.MemberRole
	StoreID *uuid.UUID
}

func (a Actor) IsAdmin() bool {
	return a.Role == enums.MemberRoleAdmin
}

// Resolve reads the actor from the request context.
func Resolve(r *http.Request) (Actor, error) {
	ctx := r.Context()
	rawUser := middleware.UserIDFromContext(ctx)
	if rawUser == "" {
		return Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor context missing")
	}
	userID, err := uuid.Parse(rawUser)
	if err != nil {
		return Actor{}, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user id")
	}
	role, err := enums.ParseMemberRole(middleware.RoleFromContext(ctx))
	if err != nil {
		return Actor{}, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid role")
	}

	actor := Actor{UserID: userID, Role: role}
	if rawStore := middleware.StoreIDFromContext(ctx); rawStore != "" {
		storeID, err := uuid.Parse(rawStore)
		if err != nil {
			return Actor{}, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid store id")
		}
		actor.StoreID = &storeID
	}
	return actor, nil
}

// AuthorizeStore allows admins on any store and sellers on their active store.
func AuthorizeStore(actor Actor, storeID uuid.UUID) error {
	if actor.IsAdmin() {
		return nil
	}
	if actor.Role == enums.MemberRoleSeller && actor.StoreID != nil && *actor.StoreID == storeID {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeForbidden, "store access denied")
}
