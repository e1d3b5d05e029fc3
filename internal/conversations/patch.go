package conversations

import (
	"encoding/json"
	"strings"
)

// OptionalString is a patch field that tells "absent" from "null" from a value.
// A key missing from the JSON object leaves Set false.
type OptionalString struct {
	Set   bool
	Value *string
}

func (o *OptionalString) UnmarshalJSON(b []byte) error {
	o.Set = true
	if string(b) == "null" {
		o.Value = nil
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	o.Value = &s
	return nil
}

func (o OptionalString) MarshalJSON() ([]byte, error) {
	if !o.Set || o.Value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(*o.Value)
}

// Value sets the field to v.
func Value(v string) OptionalString { return OptionalString{Set: true, Value: &v} }

// Null clears the relation.
func Null() OptionalString { return OptionalString{Set: true} }

// Normalized treats a blank id as an explicit clear.
func (o OptionalString) Normalized() OptionalString {
	if o.Set && o.Value != nil && strings.TrimSpace(*o.Value) == "" {
		return Null()
	}
	return o
}

// AssignmentPatch is a partial update: only set keys change state.
type AssignmentPatch struct {
	QueueID        OptionalString `json:"queue_id"`
	AssignedUserID OptionalString `json:"assigned_user_id"`
}

func (p AssignmentPatch) IsEmpty() bool {
	return !p.QueueID.Set && !p.AssignedUserID.Set
}
