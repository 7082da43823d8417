package principal

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

// RoleSet is a set of lower-cased role names.
type RoleSet map[string]struct{}

func NewRoleSet(roles ...string) RoleSet {
	s := make(RoleSet, len(roles))
	for _, r := range roles {
		s.Add(r)
	}
	return s
}

func (s RoleSet) Add(role string) {
	role = strings.ToLower(strings.TrimSpace(role))
	if role != "" {
		s[role] = struct{}{}
	}
}

// Has reports membership. Names are compared case-insensitively.
func (s RoleSet) Has(role string) bool {
	_, ok := s[strings.ToLower(strings.TrimSpace(role))]
	return ok
}

// HasAny reports whether at least one of roles is a member.
func (s RoleSet) HasAny(roles ...string) bool {
	for _, r := range roles {
		if s.Has(r) {
			return true
		}
	}
	return false
}

// Slice returns the members sorted.
func (s RoleSet) Slice() []string {
	out := make([]string, 0, len(s))
	for r := range s {
		out = append(out, r)
	}
	slices.Sort(out)
	return out
}

func (s RoleSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Slice())
}

func (s *RoleSet) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	*s = NewRoleSet(list...)
	return nil
}

// Value stores the set as a JSON array.
func (s RoleSet) Value() (driver.Value, error) {
	data, err := s.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (s *RoleSet) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*s = NewRoleSet()
		return nil
	case []byte:
		return s.UnmarshalJSON(v)
	case string:
		return s.UnmarshalJSON([]byte(v))
	default:
		return fmt.Errorf("principal: cannot scan %T into RoleSet", src)
	}
}
