package msg

import "fmt"

// NodeID is the 8-bit link-layer address of a node
type NodeID uint8

const (
	// BroadcastID addresses every reachable node
	BroadcastID NodeID = 255

	// BoothIDFloor is the lowest identifier carrying the Booth role
	BoothIDFloor NodeID = 100
)

// Role is the node type carried in beacons
type Role uint8

const (
	RoleUser  Role = 0
	RoleBooth Role = 1
)

func (r Role) String() string {
	switch r {
	case RoleUser:
		return "user"
	case RoleBooth:
		return "booth"
	default:
		return fmt.Sprintf("role(%d)", uint8(r))
	}
}

// Role derives the node type from the identifier range
func (id NodeID) Role() Role {
	if id >= BoothIDFloor && id != BroadcastID {
		return RoleBooth
	}
	return RoleUser
}

// IsBooth reports whether id falls in the Booth range
func (id NodeID) IsBooth() bool {
	return id.Role() == RoleBooth
}

// Valid reports whether id may be assigned to a node (255 is reserved)
func (id NodeID) Valid() bool {
	return id != BroadcastID
}

// Short returns the log prefix form, e.g. "B101" or "U7"
func (id NodeID) Short() string {
	if id.IsBooth() {
		return fmt.Sprintf("B%d", id)
	}
	return fmt.Sprintf("U%d", id)
}
