package model

import (
	"encoding/json"
	"sort"
	"strings"
	"time"
)

// Role is an administrative role tag
type Role string

// Administrative roles
const (
	RoleGameMaster Role = "game_master"
	RoleOrganizer  Role = "organizer"
)

// IdentityKind discriminates the identity union
type IdentityKind string

// Identity kinds
const (
	IdentityTeam IdentityKind = "team"
	IdentityRole IdentityKind = "role"
)

// Scope is the set of teams a role-credentialed actor may act on.
// A nil Scope means unrestricted.
type Scope map[TeamID]struct{}

// NewScope builds a Scope from team IDs. An empty list yields nil
// (unrestricted).
func NewScope(ids ...TeamID) Scope {
	if len(ids) == 0 {
		return nil
	}
	s := make(Scope, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Contains reports whether the scope includes the given team
func (s Scope) Contains(id TeamID) bool {
	_, ok := s[id]
	return ok
}

// TeamIDs returns the scoped team IDs in sorted order
func (s Scope) TeamIDs() []TeamID {
	ids := make([]TeamID, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// MarshalJSON serializes the scope as a sorted array of team IDs
func (s Scope) MarshalJSON() ([]byte, error) {
	if s == nil {
		return []byte("null"), nil
	}
	return json.Marshal(s.TeamIDs())
}

// UnmarshalJSON deserializes an array of team IDs
func (s *Scope) UnmarshalJSON(data []byte) error {
	var ids []TeamID
	if err := json.Unmarshal(data, &ids); err != nil {
		return err
	}
	*s = NewScope(ids...)
	return nil
}

// ParseScope parses a comma-joined team ID list as stored relationally.
// An empty string yields nil (unrestricted).
func ParseScope(joined string) Scope {
	if joined == "" {
		return nil
	}
	var ids []TeamID
	for _, part := range strings.Split(joined, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			ids = append(ids, TeamID(part))
		}
	}
	return NewScope(ids...)
}

// Join renders the scope as a comma-joined team ID list for relational
// storage. Returns "" for an unrestricted scope.
func (s Scope) Join() string {
	ids := s.TeamIDs()
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = string(id)
	}
	return strings.Join(parts, ",")
}

// CredentialID uniquely identifies a role credential
type CredentialID string

// RoleCredential is a shared administrative password with an optional
// team scope
type RoleCredential struct {
	ID           CredentialID `json:"id"`
	Role         Role         `json:"role"`
	PasswordHash string       `json:"password_hash"`
	Scope        Scope        `json:"scope,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
}

// Identity is the result of resolving a password: either a team binding
// or a role binding with an optional scope
type Identity struct {
	Kind   IdentityKind `json:"kind"`
	TeamID TeamID       `json:"team_id,omitempty"`
	Role   Role         `json:"role,omitempty"`
	Scope  Scope        `json:"scope,omitempty"`
}

// IsTeam reports whether this is a team identity
func (i Identity) IsTeam() bool {
	return i.Kind == IdentityTeam
}

// IsAdmin reports whether this is a role identity
func (i Identity) IsAdmin() bool {
	return i.Kind == IdentityRole
}

// CanActOn reports whether this identity is authorized to act on the
// given team. Team identities can only act on their own inventory through
// team commands and never pass this check; organizers are always
// unrestricted; a nil scope is unrestricted.
func (i Identity) CanActOn(id TeamID) bool {
	if i.Kind != IdentityRole {
		return false
	}
	if i.Role == RoleOrganizer {
		return true
	}
	if i.Scope == nil {
		return true
	}
	return i.Scope.Contains(id)
}

// Session binds an external user ID to an authenticated identity.
// Sessions live only in process memory.
type Session struct {
	UserID    string
	Identity  Identity
	CreatedAt time.Time
}
