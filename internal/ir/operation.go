package ir

// ActionType names the kind of effective mutation an Operation records.
type ActionType string

const (
	ActionCreateGroups ActionType = "createAssetGroups"
	ActionCreateAssets ActionType = "createAssets"
	ActionAddAssets    ActionType = "addAssets"
	ActionRemoveAssets ActionType = "removeAssets"
	ActionRemoveFacts  ActionType = "removeFacts"
	ActionDeleteAssets ActionType = "deleteAssets"
	ActionDeleteGroups ActionType = "deleteAssetGroups"
	ActionAddFacts     ActionType = "addFacts"
)

// ActionOrder is the fixed order in which the applier realizes categories.
var ActionOrder = []ActionType{
	ActionCreateGroups,
	ActionCreateAssets,
	ActionAddAssets,
	ActionRemoveAssets,
	ActionRemoveFacts,
	ActionDeleteAssets,
	ActionDeleteGroups,
	ActionAddFacts,
}

// Operation is one audit record, emitted once per effective mutation.
//
// Field use by action type:
//   - createAssets/deleteAssets/createAssetGroups/deleteAssetGroups: ObjectUUID
//   - addAssets/removeAssets: SubjectUUID (asset), ObjectUUID (group)
//   - addFacts/removeFacts: SubjectUUID, Predicate, and Object or ObjectUUID
type Operation struct {
	ID          int64      `json:"id,omitempty"`
	ActionType  ActionType `json:"action_type"`
	OwnerID     int64      `json:"owner_id"`
	Seq         int64      `json:"seq"`
	SubjectUUID string     `json:"subject_uuid,omitempty"`
	Predicate   string     `json:"predicate,omitempty"`
	Object      string     `json:"object,omitempty"`
	ObjectUUID  string     `json:"object_uuid,omitempty"`
}

// Canonical returns the operation as a canonical-JSON-ready object.
// The store ID is left out so logs compare equal across databases.
func (op Operation) Canonical() Map {
	obj := Map{
		"action_type": String(op.ActionType),
		"owner_id":    Int(op.OwnerID),
		"seq":         Int(op.Seq),
	}
	if op.SubjectUUID != "" {
		obj["subject_uuid"] = String(op.SubjectUUID)
	}
	if op.Predicate != "" {
		obj["predicate"] = String(op.Predicate)
	}
	if op.Object != "" {
		obj["object"] = String(op.Object)
	}
	if op.ObjectUUID != "" {
		obj["object_uuid"] = String(op.ObjectUUID)
	}
	return obj
}
