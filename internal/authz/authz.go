// Package authz implements the ownership authorization engine. It combines
// role permissions from the rbac registry with resource-instance ownership
// relations and produces an allow/deny decision for every gated action.
package authz

import (
	"context"
	"fmt"

	"github.com/praxisdesk/praxisdesk/internal/platform/httpx"
	"github.com/praxisdesk/praxisdesk/internal/rbac"
	"github.com/praxisdesk/praxisdesk/internal/shared"
)

// Action identifies the class of operation being authorized.
type Action string

// Actions gated by the engine.
const (
	ActionView       Action = "view"
	ActionCreate     Action = "create"
	ActionEdit       Action = "edit"
	ActionUpload     Action = "upload"
	ActionDelete     Action = "delete"
	ActionTransition Action = "transition"
)

// Decision is the outcome of an authorization check.
type Decision struct {
	Allowed bool
	Reason  string
}

// Allow returns a positive decision.
func Allow() Decision {
	return Decision{Allowed: true}
}

// Deny returns a negative decision with a reason.
func Deny(reason string) Decision {
	return Decision{Allowed: false, Reason: reason}
}

// Err maps a deny decision to the forbidden error; nil when allowed.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return fmt.Errorf("%s: %w", d.Reason, httpx.ErrForbidden)
}

// Resource is implemented by the ownership snapshots the engine evaluates.
// Callers must build these from freshly fetched rows, never from
// client-supplied identifiers.
type Resource interface {
	resource()
}

// Consultancy carries no instance ownership: access is staff-wide once the
// coarse permission is held.
type Consultancy struct{}

// Project holds the ownership fields relevant to project decisions.
type Project struct {
	CreatorID      int64
	ResponsibleID  int64
	ParticipantIDs []int64
}

// File holds the ownership fields relevant to per-file decisions.
type File struct {
	UploaderID int64
}

func (Consultancy) resource() {}
func (Project) resource()     {}
func (File) resource()        {}

// Engine decides whether a principal may perform an action on a resource.
type Engine struct {
	registry *rbac.Registry
}

// NewEngine constructs an Engine over the permission registry.
func NewEngine(registry *rbac.Registry) *Engine {
	return &Engine{registry: registry}
}

// Authorize evaluates the decision algorithm in order, first match wins:
// admin bypass, then the resource-specific ownership predicate, then deny.
func (e *Engine) Authorize(ctx context.Context, principal shared.Principal, action Action, resource Resource) (Decision, error) {
	if rbac.IsAdmin(principal) {
		return Allow(), nil
	}
	switch res := resource.(type) {
	case Consultancy:
		return e.authorizeConsultancy(ctx, principal, action)
	case Project:
		return authorizeProject(principal, action, res), nil
	case File:
		return authorizeFile(principal, action, res), nil
	default:
		return Deny("unknown resource"), nil
	}
}

func (e *Engine) authorizeConsultancy(ctx context.Context, principal shared.Principal, action Action) (Decision, error) {
	var tags []string
	switch action {
	case ActionView:
		tags = []string{rbac.PermConsultationsView, rbac.PermConsultationsViewAll, rbac.PermConsultationsViewOwn}
	case ActionCreate:
		tags = []string{rbac.PermConsultationsCreate}
	case ActionEdit, ActionTransition:
		tags = []string{rbac.PermConsultationsUpdate}
	default:
		return Deny("forbidden"), nil
	}
	for _, tag := range tags {
		ok, err := e.registry.HasPermission(ctx, principal, tag)
		if err != nil {
			return Decision{}, err
		}
		if ok {
			return Allow(), nil
		}
	}
	return Deny("forbidden"), nil
}

func authorizeProject(principal shared.Principal, action Action, project Project) Decision {
	switch action {
	case ActionDelete:
		// Responsible and participants may edit but never delete.
		if principal.ID == project.CreatorID {
			return Allow()
		}
	case ActionView, ActionEdit, ActionUpload:
		if principal.ID == project.CreatorID || principal.ID == project.ResponsibleID {
			return Allow()
		}
		for _, id := range project.ParticipantIDs {
			if principal.ID == id {
				return Allow()
			}
		}
	}
	return Deny("forbidden")
}

func authorizeFile(principal shared.Principal, action Action, file File) Decision {
	switch action {
	case ActionEdit, ActionDelete:
		if principal.ID == file.UploaderID {
			return Allow()
		}
	}
	return Deny("forbidden")
}
