// Package rules provides building blocks for writing row-level-security
// predicates: a viewer carried through the request context, and combinators
// for the common ownership, tenancy, and role checks.
package rules

import (
	"context"
	"errors"
	"slices"

	"github.com/veildb/veil"
	"github.com/veildb/veil/rls"
)

// ErrNoViewer is returned by RequireViewer when the context carries no
// viewer. It propagates out of the proxy unmodified, failing the operation
// rather than silently denying it.
var ErrNoViewer = errors.New("rules: no viewer in context")

// Viewer represents the authenticated principal making a request.
// This interface should be implemented by application-specific user types.
type Viewer interface {
	// GetID returns the viewer's unique identifier.
	GetID() string
	// GetRoles returns the viewer's roles.
	GetRoles() []string
	// GetTenantID returns the viewer's tenant identifier for
	// multi-tenancy. Returns empty string if not applicable.
	GetTenantID() string
}

// viewerCtxKey is the context key for storing the viewer.
type viewerCtxKey struct{}

// WithViewer returns a new context with the viewer attached.
func WithViewer(ctx context.Context, viewer Viewer) context.Context {
	return context.WithValue(ctx, viewerCtxKey{}, viewer)
}

// ViewerFromContext retrieves the viewer from the context.
// Returns nil if no viewer is present.
func ViewerFromContext(ctx context.Context) Viewer {
	v, _ := ctx.Value(viewerCtxKey{}).(Viewer)
	return v
}

// SimpleViewer is a basic implementation of the Viewer interface.
// Use this for testing or simple use cases.
type SimpleViewer struct {
	UserID   string
	Roles    []string
	TenantID string
}

// GetID returns the user ID.
func (v *SimpleViewer) GetID() string { return v.UserID }

// GetRoles returns the user's roles.
func (v *SimpleViewer) GetRoles() []string { return v.Roles }

// GetTenantID returns the tenant ID.
func (v *SimpleViewer) GetTenantID() string { return v.TenantID }

// AlwaysAllow returns a predicate that permits every document.
func AlwaysAllow() rls.Predicate {
	return func(context.Context, veil.Document) (bool, error) {
		return true, nil
	}
}

// AlwaysDeny returns a predicate that denies every document.
func AlwaysDeny() rls.Predicate {
	return func(context.Context, veil.Document) (bool, error) {
		return false, nil
	}
}

// RequireViewer returns a predicate that fails with ErrNoViewer when the
// context carries no viewer and otherwise allows. Combine it (And) with a
// weaker rule to turn "not logged in" into a hard error instead of a silent
// denial.
func RequireViewer() rls.Predicate {
	return func(ctx context.Context, _ veil.Document) (bool, error) {
		if ViewerFromContext(ctx) == nil {
			return false, ErrNoViewer
		}
		return true, nil
	}
}

// HasRole returns a predicate that allows documents only for viewers holding
// the given role. No viewer means deny.
func HasRole(role string) rls.Predicate {
	return func(ctx context.Context, _ veil.Document) (bool, error) {
		viewer := ViewerFromContext(ctx)
		if viewer == nil {
			return false, nil
		}
		return slices.Contains(viewer.GetRoles(), role), nil
	}
}

// OwnerField returns a predicate that allows a document when its field value
// equals the viewer's ID. Missing viewer, missing field, or a non-string
// value all deny.
func OwnerField(field string) rls.Predicate {
	return func(ctx context.Context, doc veil.Document) (bool, error) {
		viewer := ViewerFromContext(ctx)
		if viewer == nil {
			return false, nil
		}
		owner, ok := doc[field].(string)
		return ok && owner == viewer.GetID(), nil
	}
}

// TenantField returns a predicate that allows a document when its field
// value equals the viewer's tenant ID. Missing viewer, empty viewer tenant,
// or a mismatching value all deny.
func TenantField(field string) rls.Predicate {
	return func(ctx context.Context, doc veil.Document) (bool, error) {
		viewer := ViewerFromContext(ctx)
		if viewer == nil || viewer.GetTenantID() == "" {
			return false, nil
		}
		tenant, ok := doc[field].(string)
		return ok && tenant == viewer.GetTenantID(), nil
	}
}

// OnOperation applies p only when the in-flight operation matches op, and
// allows otherwise. The proxy stamps the operation into the context before
// each evaluation, so a modify rule can, for example, treat deletes more
// strictly than patches.
func OnOperation(op veil.Op, p rls.Predicate) rls.Predicate {
	return func(ctx context.Context, doc veil.Document) (bool, error) {
		if cur, ok := veil.OpFromContext(ctx); ok && cur.Is(op) {
			return p(ctx, doc)
		}
		return true, nil
	}
}

// And returns a predicate that allows only when every given predicate
// allows. Evaluation stops at the first denial or error.
func And(preds ...rls.Predicate) rls.Predicate {
	return func(ctx context.Context, doc veil.Document) (bool, error) {
		for _, p := range preds {
			allowed, err := p(ctx, doc)
			if err != nil || !allowed {
				return false, err
			}
		}
		return true, nil
	}
}

// Or returns a predicate that allows when any given predicate allows.
// Evaluation stops at the first allowance or error.
func Or(preds ...rls.Predicate) rls.Predicate {
	return func(ctx context.Context, doc veil.Document) (bool, error) {
		for _, p := range preds {
			allowed, err := p(ctx, doc)
			if err != nil {
				return false, err
			}
			if allowed {
				return true, nil
			}
		}
		return false, nil
	}
}
