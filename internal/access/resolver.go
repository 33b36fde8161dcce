package access

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"fieldgate.dev/internal/audit"
	"fieldgate.dev/internal/obs"
)

// Resolver answers authorization questions for one Store. It is read-only
// and safe for concurrent use; administrative changes go through Admin.
type Resolver struct {
	store     Store
	hierarchy *Hierarchy
	override  Override
	audit     bool
	metrics   bool
	alerter   *obs.Alerter
}

// ResolverOption configures Resolver behavior.
type ResolverOption func(*Resolver) error

// WithOverride forces every decision to the given outcome. Lockdown and
// break-glass tooling only; unset restores normal resolution.
func WithOverride(o Override) ResolverOption {
	return func(r *Resolver) error {
		r.override = o
		return nil
	}
}

// WithAuditLog emits one audit event per decision.
func WithAuditLog() ResolverOption {
	return func(r *Resolver) error {
		r.audit = true
		return nil
	}
}

// WithMetrics records decision counters and latency histograms.
func WithMetrics() ResolverOption {
	return func(r *Resolver) error {
		r.metrics = true
		return nil
	}
}

// WithIntegrityAlerter replaces the rate-limited alerter used when a walk
// trips over corrupted configuration.
func WithIntegrityAlerter(a *obs.Alerter) ResolverOption {
	return func(r *Resolver) error {
		if a != nil {
			r.alerter = a
		}
		return nil
	}
}

// NewResolver constructs a Resolver with optional configuration.
func NewResolver(store Store, opts ...ResolverOption) (*Resolver, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store is required", ErrInvalidInput)
	}
	r := &Resolver{
		store:     store,
		hierarchy: NewHierarchy(store.Roles()),
		alerter:   obs.NewAlerter(time.Minute, 3),
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Authorize resolves an object-level check: may the principal perform action
// on the object class at all. Record visibility is not consulted.
func (r *Resolver) Authorize(ctx context.Context, p Principal, object string, action Action) (Decision, error) {
	started := time.Now()
	d := Decision{Object: object, Action: action}
	if err := validateObjectCheck(p, object, action); err != nil {
		return d, err
	}
	if forced, dec := r.overridden(d); forced {
		return r.finish(ctx, p, dec, started), nil
	}

	allowed, configured, err := r.objectGate(ctx, p.ProfileID, object, action)
	if err != nil {
		return d, r.fail(ctx, p, d, err)
	}
	d.Configured = configured
	if allowed {
		d.Allowed = true
		d.Reason = ReasonAllowed
		d.Grant = GrantObjectGate
	} else {
		d.Reason = ReasonNoObjectPermission
	}
	return r.finish(ctx, p, d, started), nil
}

// AuthorizeRecord resolves the full cascade for one record: object gate
// first, then the visibility tiers. Create never targets an existing record
// and is rejected here.
func (r *Resolver) AuthorizeRecord(ctx context.Context, p Principal, object string, action Action, recordID, ownerID string) (Decision, error) {
	started := time.Now()
	d := Decision{Object: object, Action: action, RecordID: recordID}
	if err := validateRecordCheck(p, object, action, recordID, ownerID); err != nil {
		return d, err
	}
	if forced, dec := r.overridden(d); forced {
		return r.finish(ctx, p, dec, started), nil
	}

	d, err := r.resolveRecord(ctx, p, d, ownerID, nil)
	if err != nil {
		return d, r.fail(ctx, p, d, err)
	}
	return r.finish(ctx, p, d, started), nil
}

// ExplainRecord resolves exactly like AuthorizeRecord and additionally
// returns the tiers consulted, in evaluation order.
func (r *Resolver) ExplainRecord(ctx context.Context, p Principal, object string, action Action, recordID, ownerID string) (Decision, []TraceStep, error) {
	started := time.Now()
	d := Decision{Object: object, Action: action, RecordID: recordID}
	if err := validateRecordCheck(p, object, action, recordID, ownerID); err != nil {
		return d, nil, err
	}
	if forced, dec := r.overridden(d); forced {
		steps := []TraceStep{{Tier: "override", Granted: dec.Allowed, Detail: r.override.String()}}
		return r.finish(ctx, p, dec, started), steps, nil
	}

	trace := make([]TraceStep, 0, 6)
	d, err := r.resolveRecord(ctx, p, d, ownerID, &trace)
	if err != nil {
		return d, trace, r.fail(ctx, p, d, err)
	}
	return r.finish(ctx, p, d, started), trace, nil
}

// resolveRecord runs the object gate and the visibility cascade, filling the
// decision. It never emits; callers finish exactly once.
func (r *Resolver) resolveRecord(ctx context.Context, p Principal, d Decision, ownerID string, trace *[]TraceStep) (Decision, error) {
	allowed, configured, err := r.objectGate(ctx, p.ProfileID, d.Object, d.Action)
	if err != nil {
		return d, err
	}
	d.Configured = configured
	if trace != nil {
		*trace = append(*trace, TraceStep{Tier: "object_gate", Granted: allowed})
	}
	if !allowed {
		d.Reason = ReasonNoObjectPermission
		return d, nil
	}

	needed, ok := neededAccess(d.Action)
	if !ok {
		d.Reason = ReasonNoRecordVisibility
		return d, nil
	}
	grant, err := r.canSeeRecord(ctx, p, d.Object, d.RecordID, ownerID, needed, trace)
	if err != nil {
		return d, err
	}
	if grant == "" {
		d.Reason = ReasonNoRecordVisibility
		return d, nil
	}
	d.Allowed = true
	d.Reason = ReasonAllowed
	d.Grant = grant
	return d, nil
}

// AuthorizeField resolves a field-level check. The field gate only applies
// after the object gate passes for the action the mode implies: read mode
// requires object read, edit mode requires object update.
func (r *Resolver) AuthorizeField(ctx context.Context, p Principal, object, field string, mode FieldMode) (Decision, error) {
	started := time.Now()
	d := Decision{Object: object, Field: field, Mode: mode}
	if err := validateFieldCheck(p, object, field, mode); err != nil {
		return d, err
	}
	d.Action = modeAction(mode)
	if forced, dec := r.overridden(d); forced {
		return r.finish(ctx, p, dec, started), nil
	}

	allowed, configured, err := r.objectGate(ctx, p.ProfileID, object, d.Action)
	if err != nil {
		return d, r.fail(ctx, p, d, err)
	}
	d.Configured = configured
	if !allowed {
		d.Reason = ReasonNoObjectPermission
		return r.finish(ctx, p, d, started), nil
	}

	allowed, configured, err = r.fieldGate(ctx, p.ProfileID, object, field, mode)
	if err != nil {
		return d, r.fail(ctx, p, d, err)
	}
	d.Configured = d.Configured && configured
	if allowed {
		d.Allowed = true
		d.Reason = ReasonAllowed
		d.Grant = GrantObjectGate
	} else {
		d.Reason = ReasonNoFieldPermission
	}
	return r.finish(ctx, p, d, started), nil
}

// AuthorizeRecordField combines the record cascade with the field gate:
// object gate, record visibility, then field permission. Any failing layer
// denies with that layer's reason.
func (r *Resolver) AuthorizeRecordField(ctx context.Context, p Principal, object, field string, mode FieldMode, recordID, ownerID string) (Decision, error) {
	started := time.Now()
	action := modeAction(mode)
	d := Decision{Object: object, Action: action, Field: field, Mode: mode, RecordID: recordID}
	if err := validateFieldCheck(p, object, field, mode); err != nil {
		return d, err
	}
	if err := validateRecordCheck(p, object, action, recordID, ownerID); err != nil {
		return d, err
	}
	if forced, dec := r.overridden(d); forced {
		return r.finish(ctx, p, dec, started), nil
	}

	rec, err := r.resolveRecord(ctx, p, Decision{Object: object, Action: action, RecordID: recordID}, ownerID, nil)
	if err != nil {
		return d, r.fail(ctx, p, d, err)
	}
	d.Configured = rec.Configured
	if !rec.Allowed {
		d.Reason = rec.Reason
		return r.finish(ctx, p, d, started), nil
	}

	allowed, configured, err := r.fieldGate(ctx, p.ProfileID, object, field, mode)
	if err != nil {
		return d, r.fail(ctx, p, d, err)
	}
	d.Configured = d.Configured && configured
	if allowed {
		d.Allowed = true
		d.Reason = ReasonAllowed
		d.Grant = rec.Grant
	} else {
		d.Reason = ReasonNoFieldPermission
	}
	return r.finish(ctx, p, d, started), nil
}

// CanPerform is the raw object gate, keyed by profile rather than principal.
// Missing rows answer false without error.
func (r *Resolver) CanPerform(ctx context.Context, profileID, object string, action Action) (bool, error) {
	if profileID == "" || object == "" {
		return false, fmt.Errorf("%w: profile id and object are required", ErrInvalidInput)
	}
	if !action.Valid() {
		return false, fmt.Errorf("%w: unknown action %q", ErrInvalidInput, action)
	}
	allowed, _, err := r.objectGate(ctx, profileID, object, action)
	return allowed, err
}

// CanAccessField is the raw field gate, keyed by profile.
func (r *Resolver) CanAccessField(ctx context.Context, profileID, object, field string, mode FieldMode) (bool, error) {
	if profileID == "" || object == "" || field == "" {
		return false, fmt.Errorf("%w: profile id, object and field are required", ErrInvalidInput)
	}
	if !mode.Valid() {
		return false, fmt.Errorf("%w: unknown field mode %q", ErrInvalidInput, mode)
	}
	allowed, _, err := r.fieldGate(ctx, profileID, object, field, mode)
	return allowed, err
}

// VisibleFields returns the sorted field names the principal may read on the
// object. When the object read gate fails the answer is empty: field grants
// never widen object access.
func (r *Resolver) VisibleFields(ctx context.Context, p Principal, object string) ([]string, error) {
	if err := validateObjectCheck(p, object, ActionRead); err != nil {
		return nil, err
	}
	allowed, _, err := r.objectGate(ctx, p.ProfileID, object, ActionRead)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return []string{}, nil
	}
	fields, err := r.store.FieldPermissions().ListReadable(ctx, p.ProfileID, object)
	if err != nil {
		return nil, fmt.Errorf("list readable fields for %s: %w", object, err)
	}
	sort.Strings(fields)
	return fields, nil
}

// objectGate answers the profile CRUD gate. A missing row is a deny with
// configured false, never an error.
func (r *Resolver) objectGate(ctx context.Context, profileID, object string, action Action) (allowed, configured bool, err error) {
	perm, err := r.store.ObjectPermissions().Get(ctx, profileID, object)
	if errors.Is(err, ErrNotFound) {
		return false, false, nil
	}
	if err != nil {
		return false, false, fmt.Errorf("load object permission %s/%s: %w", profileID, object, err)
	}
	return perm.Allows(action), true, nil
}

func (r *Resolver) fieldGate(ctx context.Context, profileID, object, field string, mode FieldMode) (allowed, configured bool, err error) {
	perm, err := r.store.FieldPermissions().Get(ctx, profileID, object, field)
	if errors.Is(err, ErrNotFound) {
		return false, false, nil
	}
	if err != nil {
		return false, false, fmt.Errorf("load field permission %s/%s.%s: %w", profileID, object, field, err)
	}
	return perm.Allows(mode), true, nil
}

// overridden applies a configured override without consulting the store.
func (r *Resolver) overridden(d Decision) (bool, Decision) {
	switch r.override {
	case OverrideAllow:
		d.Allowed = true
		d.Reason = ReasonAllowed
	case OverrideDeny:
		d.Allowed = false
		d.Reason = ReasonNoObjectPermission
	default:
		return false, d
	}
	return true, d
}

// finish emits the metrics and audit record for one completed decision.
func (r *Resolver) finish(ctx context.Context, p Principal, d Decision, started time.Time) Decision {
	if r.metrics {
		obs.ObserveDecision(d.Object, string(d.Action), d.Allowed, string(d.Reason), time.Since(started))
	}
	if r.audit {
		fields := map[string]any{
			"user_id": p.UserID,
			"org_id":  p.OrganizationID,
			"object":  d.Object,
			"allowed": d.Allowed,
			"reason":  string(d.Reason),
		}
		if d.Action != "" {
			fields["action"] = string(d.Action)
		}
		if d.Field != "" {
			fields["field"] = d.Field
			fields["mode"] = string(d.Mode)
		}
		if d.RecordID != "" {
			fields["record_id"] = d.RecordID
		}
		if d.Grant != "" {
			fields["grant"] = string(d.Grant)
		}
		audit.LogEvent(ctx, audit.EventDecision, fields)
	}
	return d
}

// fail routes integrity violations to the operator channel before returning
// them. Ordinary store errors pass through untouched.
func (r *Resolver) fail(ctx context.Context, p Principal, d Decision, err error) error {
	if !errors.Is(err, ErrIntegrity) {
		return err
	}
	if r.metrics {
		obs.IncIntegrityFailure()
	}
	r.alerter.Alert("access-resolver", "integrity violation during resolution", map[string]any{
		"org_id": p.OrganizationID,
		"object": d.Object,
		"error":  err.Error(),
	})
	if r.audit {
		audit.LogEvent(ctx, audit.EventIntegrity, map[string]any{
			"user_id": p.UserID,
			"org_id":  p.OrganizationID,
			"object":  d.Object,
			"error":   err.Error(),
		})
	}
	return err
}

func validateObjectCheck(p Principal, object string, action Action) error {
	if err := p.complete(); err != nil {
		return err
	}
	if object == "" {
		return fmt.Errorf("%w: object is required", ErrInvalidInput)
	}
	if !action.Valid() {
		return fmt.Errorf("%w: unknown action %q", ErrInvalidInput, action)
	}
	return nil
}

func validateRecordCheck(p Principal, object string, action Action, recordID, ownerID string) error {
	if err := validateObjectCheck(p, object, action); err != nil {
		return err
	}
	if action == ActionCreate {
		return fmt.Errorf("%w: create does not target an existing record", ErrInvalidInput)
	}
	if recordID == "" || ownerID == "" {
		return fmt.Errorf("%w: record id and owner id are required", ErrInvalidInput)
	}
	return nil
}

func validateFieldCheck(p Principal, object, field string, mode FieldMode) error {
	if err := p.complete(); err != nil {
		return err
	}
	if object == "" || field == "" {
		return fmt.Errorf("%w: object and field are required", ErrInvalidInput)
	}
	if !mode.Valid() {
		return fmt.Errorf("%w: unknown field mode %q", ErrInvalidInput, mode)
	}
	return nil
}

func modeAction(mode FieldMode) Action {
	if mode == FieldEdit {
		return ActionUpdate
	}
	return ActionRead
}
