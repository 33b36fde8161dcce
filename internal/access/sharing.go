package access

import (
	"context"
	"errors"
	"fmt"

	"fieldgate.dev/internal/obs"
)

// neededAccess maps an action to the record access level it requires.
// Create does not target an existing record and has no level.
func neededAccess(action Action) (AccessLevel, bool) {
	switch action {
	case ActionRead:
		return AccessRead, true
	case ActionUpdate, ActionDelete:
		return AccessReadWrite, true
	default:
		return "", false
	}
}

// unionAccess folds two levels: read_write dominates read.
func unionAccess(a, b AccessLevel) AccessLevel {
	if a == AccessReadWrite || b == AccessReadWrite {
		return AccessReadWrite
	}
	if a == AccessRead || b == AccessRead {
		return AccessRead
	}
	return ""
}

// canSeeRecord walks the record visibility tiers in fixed order: ownership,
// role hierarchy, org-wide default, sharing rules, manual share. It returns
// the tier that granted access, or the empty Grant when none did. Every tier
// handles absent configuration as "no grant here"; only corrupted data
// escalates to an error.
func (r *Resolver) canSeeRecord(ctx context.Context, p Principal, object, recordID, ownerID string, needed AccessLevel, trace *[]TraceStep) (Grant, error) {
	step := func(tier string, granted bool, detail string) {
		if trace != nil {
			*trace = append(*trace, TraceStep{Tier: tier, Granted: granted, Detail: detail})
		}
	}

	if p.UserID == ownerID {
		step("owner", true, "requester owns the record")
		return GrantOwner, nil
	}
	step("owner", false, "")

	if p.HasRole() {
		granted, detail, err := r.roleAbove(ctx, p, ownerID)
		if err != nil {
			return "", err
		}
		step("role_hierarchy", granted, detail)
		if granted {
			return GrantRoleHierarchy, nil
		}
	} else {
		step("role_hierarchy", false, "requester has no role")
	}

	def, err := r.store.OrgDefaults().Get(ctx, p.OrganizationID, object)
	switch {
	case errors.Is(err, ErrNotFound):
		step("org_default", false, "no default configured, treated as private")
	case err != nil:
		return "", fmt.Errorf("load org default for %s: %w", object, err)
	default:
		switch def.Level {
		case DefaultPublicReadWrite:
			step("org_default", true, string(def.Level))
			return GrantOrgDefault, nil
		case DefaultPublicReadOnly:
			if needed == AccessRead {
				step("org_default", true, string(def.Level))
				return GrantOrgDefault, nil
			}
			step("org_default", false, fmt.Sprintf("%s does not cover writes", def.Level))
		default:
			step("org_default", false, string(def.Level))
		}
	}

	granted, detail, err := r.ruleAccess(ctx, p, object, needed)
	if err != nil {
		return "", err
	}
	step("sharing_rules", granted, detail)
	if granted {
		return GrantSharingRule, nil
	}

	share, err := r.store.ManualShares().Get(ctx, object, recordID, p.UserID)
	switch {
	case errors.Is(err, ErrNotFound):
		step("manual_share", false, "")
	case err != nil:
		return "", fmt.Errorf("load manual share for %s/%s: %w", object, recordID, err)
	default:
		if share.AccessLevel.Covers(needed) {
			step("manual_share", true, string(share.AccessLevel))
			return GrantManualShare, nil
		}
		step("manual_share", false, fmt.Sprintf("%s does not cover %s", share.AccessLevel, needed))
	}

	return "", nil
}

// roleAbove reports whether the principal's role is a strict ancestor of the
// record owner's role within the same organization. A hierarchy grant covers
// both read and write.
func (r *Resolver) roleAbove(ctx context.Context, p Principal, ownerID string) (bool, string, error) {
	owner, err := r.store.Users().Find(ctx, ownerID)
	if errors.Is(err, ErrNotFound) {
		return false, "record owner not found", nil
	}
	if err != nil {
		return false, "", fmt.Errorf("load record owner %s: %w", ownerID, err)
	}
	if owner.RoleID == "" {
		return false, "record owner has no role", nil
	}
	if owner.OrganizationID != p.OrganizationID {
		return false, "record owner belongs to another organization", nil
	}
	above, err := r.hierarchy.IsAncestor(ctx, p.RoleID, owner.RoleID)
	if err != nil {
		return false, "", err
	}
	if !above {
		return false, "requester role is not above the owner's", nil
	}
	return true, "requester role is above the owner's", nil
}

// ruleAccess folds every active rule matching the principal's role into a
// single union level and checks it against the needed level. All rules
// participate in the fold; evaluation never stops at the first match.
func (r *Resolver) ruleAccess(ctx context.Context, p Principal, object string, needed AccessLevel) (bool, string, error) {
	rules, err := r.store.SharingRules().ListActive(ctx, p.OrganizationID, object)
	if err != nil {
		return false, "", fmt.Errorf("list sharing rules for %s: %w", object, err)
	}
	if len(rules) == 0 {
		return false, "no active rules", nil
	}
	if !p.HasRole() {
		return false, "requester has no role", nil
	}

	var granted AccessLevel
	matched := 0
	for _, rule := range rules {
		if rule.Type != RuleOwnershipBased {
			// Criteria-based rules carry predicates this engine does not
			// evaluate; skipping keeps the grant set a strict subset of the
			// intended one.
			if r.metrics {
				obs.IncCriteriaRuleSkipped()
			}
			obs.LogEvent(map[string]any{
				"level":   "warn",
				"message": "skipping unevaluable sharing rule",
				"rule_id": rule.ID,
				"type":    string(rule.Type),
			})
			continue
		}
		if !rule.AccessLevel.Valid() {
			continue
		}
		match := rule.SharedToRoleID == p.RoleID
		if !match && rule.IncludeSubordinates {
			below, err := r.hierarchy.IsDescendant(ctx, p.RoleID, rule.SharedToRoleID)
			if err != nil {
				return false, "", err
			}
			match = below
		}
		if !match {
			continue
		}
		matched++
		granted = unionAccess(granted, rule.AccessLevel)
	}
	if matched == 0 {
		return false, "no rule matched the requester's role", nil
	}
	if !granted.Covers(needed) {
		return false, fmt.Sprintf("%d rules grant %s, need %s", matched, granted, needed), nil
	}
	return true, fmt.Sprintf("%d rules grant %s", matched, granted), nil
}
