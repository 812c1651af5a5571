// Package domain contains the entities shared by the coordinator: users,
// readings and the signaling message envelope. Metadata only, no transport
// or persistence concerns.
package domain

type Role string

const (
	RoleClient Role = "client"
	RoleReader Role = "reader"
)

func (r Role) Valid() bool {
	return r == RoleClient || r == RoleReader
}

// User mirrors the persisted account record. BalanceCents is owned by the
// settlement engine: no other component may read-then-write it.
type User struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	Role         Role   `json:"role"`
	BalanceCents int64  `json:"balanceCents"`
}
