package settings

// RelationType gives the direction of a relation.
type RelationType int

const (
	// RequiresTarget marks the owner as depending on the target.
	RequiresTarget RelationType = iota + 1
	// RequiredByTarget marks the target as depending on the owner.
	RequiredByTarget
)

func (t RelationType) String() string {
	switch t {
	case RequiresTarget:
		return "requires"
	case RequiredByTarget:
		return "required_by"
	default:
		return "unknown"
	}
}

// SettingRelation is a directed edge between two definitions. Role names the
// property the relation concerns, such as "value" or "enabled".
type SettingRelation struct {
	Owner  *SettingDefinition
	Target *SettingDefinition
	Type   RelationType
	Role   string
}

func (r *SettingRelation) String() string {
	owner, target := "<nil>", "<nil>"
	if r.Owner != nil {
		owner = r.Owner.Key()
	}
	if r.Target != nil {
		target = r.Target.Key()
	}
	return owner + " " + r.Type.String() + " " + target + " (" + r.Role + ")"
}
