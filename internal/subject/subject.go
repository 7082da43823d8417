// Package subject names the four principal kinds and the reference type used
// to address a principal across packages.
package subject

import "strings"

// Kind is the class of an authenticated principal.
type Kind string

const (
	KindAdmin       Kind = "admin"
	KindClient      Kind = "client"
	KindUser        Kind = "user"
	KindApplication Kind = "application"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindAdmin, KindClient, KindUser, KindApplication:
		return true
	}
	return false
}

// ParseKind normalizes s into a Kind.
func ParseKind(s string) (Kind, bool) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	return k, k.Valid()
}

// Ref addresses one principal. IDs are only unique within a kind.
type Ref struct {
	ID   string
	Kind Kind
}

func (r Ref) String() string {
	return string(r.Kind) + ":" + r.ID
}
