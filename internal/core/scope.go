package core

import (
	"collectcore/pkg/domain"
	"fmt"
)

// Scope is the resolved visibility set of a principal: the org nodes whose
// data the principal may read and act on. Super admins resolve to a wildcard
// scope with empty sets.
type Scope struct {
	Wildcard bool
	Regions  map[string]struct{}
	Sectors  map[string]struct{}
	Schools  map[string]struct{}
}

// ContainsSchool reports whether the given school id falls inside the scope.
func (s Scope) ContainsSchool(id string) bool {
	if s.Wildcard {
		return true
	}
	_, ok := s.Schools[id]
	return ok
}

// ContainsNode reports whether any org node id falls inside the scope.
func (s Scope) ContainsNode(id string) bool {
	if s.Wildcard {
		return true
	}
	if _, ok := s.Regions[id]; ok {
		return true
	}
	if _, ok := s.Sectors[id]; ok {
		return true
	}
	_, ok := s.Schools[id]
	return ok
}

// SchoolCount returns the number of schools in scope; view supplies the full
// tree for wildcard scopes.
func (s Scope) SchoolCount(view TransactionView) int {
	if !s.Wildcard {
		return len(s.Schools)
	}
	n := 0
	for _, node := range view.ListOrgNodes() {
		if node.Kind == OrgSchool {
			n++
		}
	}
	return n
}

// ResolveScope computes a principal's scope against the org tree in view.
// Every operation resolves scope through this single function; a principal
// whose bound node is missing from the tree yields a ScopeError.
func ResolveScope(view TransactionView, principal Principal) (Scope, error) {
	if principal.Role == RoleSuperAdmin {
		return Scope{Wildcard: true}, nil
	}

	boundID := principal.BoundNodeID()
	if boundID == "" {
		return Scope{}, &domain.ScopeError{Principal: principal.ID, Reason: fmt.Sprintf("role %s has no bound org node", principal.Role)}
	}
	bound, ok := view.FindOrgNode(boundID)
	if !ok {
		return Scope{}, &domain.ScopeError{Principal: principal.ID, Reason: fmt.Sprintf("bound org node %s not found", boundID)}
	}

	var wantKind OrgKind
	switch principal.Role {
	case RoleRegionAdmin:
		wantKind = OrgRegion
	case RoleSectorAdmin:
		wantKind = OrgSector
	case RoleSchoolAdmin:
		wantKind = OrgSchool
	default:
		return Scope{}, &domain.ScopeError{Principal: principal.ID, Reason: fmt.Sprintf("unknown role %s", principal.Role)}
	}
	if bound.Kind != wantKind {
		return Scope{}, &domain.ScopeError{Principal: principal.ID, Reason: fmt.Sprintf("role %s bound to %s node %s", principal.Role, bound.Kind, bound.ID)}
	}

	scope := Scope{
		Regions: map[string]struct{}{},
		Sectors: map[string]struct{}{},
		Schools: map[string]struct{}{},
	}
	nodes := view.ListOrgNodes()

	switch bound.Kind {
	case OrgRegion:
		scope.Regions[bound.ID] = struct{}{}
		for _, n := range nodes {
			if n.Kind == OrgSector && n.ParentID != nil && *n.ParentID == bound.ID {
				scope.Sectors[n.ID] = struct{}{}
			}
		}
		for _, n := range nodes {
			if n.Kind == OrgSchool && n.ParentID != nil {
				if _, ok := scope.Sectors[*n.ParentID]; ok {
					scope.Schools[n.ID] = struct{}{}
				}
			}
		}
	case OrgSector:
		scope.Sectors[bound.ID] = struct{}{}
		for _, n := range nodes {
			if n.Kind == OrgSchool && n.ParentID != nil && *n.ParentID == bound.ID {
				scope.Schools[n.ID] = struct{}{}
			}
		}
	case OrgSchool:
		scope.Schools[bound.ID] = struct{}{}
	}
	return scope, nil
}

// AssignableRoles returns the roles a principal may grant. Roles only ever
// assign strictly lower roles; school admins assign nothing.
func AssignableRoles(role Role) []Role {
	switch role {
	case RoleSuperAdmin:
		return []Role{RoleRegionAdmin, RoleSectorAdmin, RoleSchoolAdmin}
	case RoleRegionAdmin:
		return []Role{RoleSectorAdmin, RoleSchoolAdmin}
	case RoleSectorAdmin:
		return []Role{RoleSchoolAdmin}
	default:
		return nil
	}
}

// CanAssign reports whether assigner may grant target. Privilege escalation
// and lateral grants are always refused.
func CanAssign(assigner, target Role) bool {
	for _, r := range AssignableRoles(assigner) {
		if r == target {
			return true
		}
	}
	return false
}

// canApprove reports whether the role reviews submissions. School admins
// submit data; they never sit on the approval side.
func canApprove(role Role) bool {
	switch role {
	case RoleSuperAdmin, RoleRegionAdmin, RoleSectorAdmin:
		return true
	default:
		return false
	}
}

// canManageSchema reports whether the role may define categories and columns.
func canManageSchema(role Role) bool {
	return role == RoleSuperAdmin
}
