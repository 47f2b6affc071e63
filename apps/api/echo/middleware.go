package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core/document"
	"github.com/trezcool/darasa/core/user"
)

func adminMiddleware(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			if claims.IsAdmin && contextHasAnyRole(ctx, roles) {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

// documentAccessMiddleware loads the document and enforces the visibility
// rules before any detail handler runs; the loaded document lands in the
// context under "object".
func documentAccessMiddleware(userSvc *user.Service, docSvc *document.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			ctxUsr, err := getContextUser(ctx, userSvc)
			if err != nil {
				return errors.Wrap(err, "getting context user")
			}

			doc, err := docSvc.GetByID(ctx.Request().Context(), ctx.Param("id"))
			if err != nil {
				if errors.Cause(err) == document.ErrNotFound {
					return errHttpNotFound
				}
				return errors.Wrap(err, "finding document by ID")
			}

			filter := document.QueryFilter{UserID: ctxUsr.ID, Role: ctxUsr.MaxRole(), SchoolID: ctxUsr.SchoolID}
			if !filter.Matches(doc) {
				// hide existence from unrelated users
				return errHttpNotFound
			}

			ctx.Set("object", doc)
			return next(ctx)
		}
	}
}

// documentOwnerMiddleware restricts destructive document endpoints to the
// owner or a school admin. Must run after documentAccessMiddleware.
func documentOwnerMiddleware(userSvc *user.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			doc, ok := ctx.Get("object").(document.Document)
			if !ok {
				return errHttpNotFound
			}
			ctxUsr, err := getContextUser(ctx, userSvc)
			if err != nil {
				return errors.Wrap(err, "getting context user")
			}
			if doc.OwnerID == ctxUsr.ID || ctxUsr.IsAdmin() {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}
