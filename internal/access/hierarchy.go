package access

import (
	"context"
	"errors"
	"fmt"
)

// maxWalkDepth bounds ancestor walks. A legitimate hierarchy never comes
// close; hitting the bound means the parent chain is corrupt.
const maxWalkDepth = 64

// Hierarchy answers ancestor and descendant questions over the role tree.
// Walks are bounded and cycle-checked: corrupted chains surface ErrIntegrity
// rather than looping or silently denying.
type Hierarchy struct {
	roles RoleStore
}

func NewHierarchy(roles RoleStore) *Hierarchy {
	return &Hierarchy{roles: roles}
}

// IsAncestor reports whether candidateID is a strict ancestor of roleID.
// A role is never its own ancestor.
func (h *Hierarchy) IsAncestor(ctx context.Context, candidateID, roleID string) (bool, error) {
	if candidateID == "" || roleID == "" {
		return false, nil
	}
	if candidateID == roleID {
		return false, nil
	}
	role, err := h.roles.Find(ctx, roleID)
	if errors.Is(err, ErrNotFound) {
		return false, fmt.Errorf("%w: role %s missing from hierarchy", ErrIntegrity, roleID)
	}
	if err != nil {
		return false, fmt.Errorf("load role %s: %w", roleID, err)
	}
	seen := map[string]struct{}{role.ID: {}}
	cur := role
	for depth := 0; cur.ParentID != ""; depth++ {
		if depth >= maxWalkDepth {
			return false, fmt.Errorf("%w: role chain from %s exceeds depth %d", ErrIntegrity, roleID, maxWalkDepth)
		}
		if cur.ParentID == candidateID {
			return true, nil
		}
		if _, ok := seen[cur.ParentID]; ok {
			return false, fmt.Errorf("%w: role hierarchy cycle at %s", ErrIntegrity, cur.ParentID)
		}
		parent, err := h.roles.Find(ctx, cur.ParentID)
		if errors.Is(err, ErrNotFound) {
			return false, fmt.Errorf("%w: role %s references missing parent %s", ErrIntegrity, cur.ID, cur.ParentID)
		}
		if err != nil {
			return false, fmt.Errorf("load role %s: %w", cur.ParentID, err)
		}
		seen[parent.ID] = struct{}{}
		cur = parent
	}
	return false, nil
}

// IsDescendant reports whether candidateID sits strictly below roleID.
func (h *Hierarchy) IsDescendant(ctx context.Context, candidateID, roleID string) (bool, error) {
	return h.IsAncestor(ctx, roleID, candidateID)
}
