package access

// Reason classifies a decision for callers and audit records.
type Reason string

const (
	ReasonAllowed            Reason = "allowed"
	ReasonNoObjectPermission Reason = "no_object_permission"
	ReasonNoFieldPermission  Reason = "no_field_permission"
	ReasonNoRecordVisibility Reason = "no_record_visibility"
)

// Grant names the visibility tier that granted record access. Empty on
// object-level and field-level decisions, and on denials.
type Grant string

const (
	GrantObjectGate    Grant = "object_gate"
	GrantOwner         Grant = "owner"
	GrantRoleHierarchy Grant = "role_hierarchy"
	GrantOrgDefault    Grant = "org_default"
	GrantSharingRule   Grant = "sharing_rule"
	GrantManualShare   Grant = "manual_share"
)

// Decision is the outcome of one authorization check. Configured reports
// whether an explicit permission row backed the object gate; a deny with
// Configured false means the permission was simply never set up.
type Decision struct {
	Allowed    bool      `json:"allowed"`
	Reason     Reason    `json:"reason"`
	Grant      Grant     `json:"grant,omitempty"`
	Object     string    `json:"object"`
	Action     Action    `json:"action,omitempty"`
	Field      string    `json:"field,omitempty"`
	Mode       FieldMode `json:"mode,omitempty"`
	RecordID   string    `json:"record_id,omitempty"`
	Configured bool      `json:"configured"`
}

// Override short-circuits the resolver for break-glass and lockdown
// operation. Unset means resolve normally.
type Override int

const (
	OverrideUnset Override = iota
	OverrideAllow
	OverrideDeny
)

func (o Override) String() string {
	switch o {
	case OverrideAllow:
		return "allow"
	case OverrideDeny:
		return "deny"
	default:
		return "unset"
	}
}

// TraceStep records one tier consulted while resolving record visibility.
// ExplainRecord returns the steps in evaluation order.
type TraceStep struct {
	Tier    string `json:"tier"`
	Granted bool   `json:"granted"`
	Detail  string `json:"detail,omitempty"`
}
