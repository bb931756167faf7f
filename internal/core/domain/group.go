package domain

import "time"

const (
	GroupRoleAdmin  = "admin"
	GroupRoleMember = "member"
)

// Group is a named chat group. Its room key is group_<ID>.
type Group struct {
	ID          string    `json:"id" bson:"_id"`
	Name        string    `json:"name" bson:"name"`
	Description string    `json:"description,omitempty" bson:"description,omitempty"`
	CreatedBy   string    `json:"created_by" bson:"created_by"`
	CreatedAt   time.Time `json:"created_at" bson:"created_at"`
}

// RoomID returns the room key of the group.
func (g *Group) RoomID() string {
	return GroupRoomKey(g.ID)
}

// Membership grants a user send and receive rights on a group room.
// There is exactly one membership per (GroupID, UserID).
type Membership struct {
	GroupID  string    `json:"group_id" bson:"group_id"`
	UserID   string    `json:"user_id" bson:"user_id"`
	Role     string    `json:"role" bson:"role"`
	JoinedAt time.Time `json:"joined_at" bson:"joined_at"`
}
