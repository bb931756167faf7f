package domain

import (
	"sort"
	"strings"
)

// RoomKind classifies a room key.
type RoomKind string

const (
	RoomGlobal  RoomKind = "global"
	RoomGroup   RoomKind = "group"
	RoomPrivate RoomKind = "private"
	// RoomOpen covers any other key. Such rooms are open to every user.
	RoomOpen RoomKind = "open"
)

const (
	GlobalRoomID = "global"

	groupPrefix     = "group_"
	privatePrefix   = "private_user_"
	privateSplitter = "_user_"
)

// RoomKey is the parsed form of a client-supplied room identifier.
type RoomKey struct {
	Raw     string
	Kind    RoomKind
	GroupID string
	// Members holds the two participants of a private room.
	Members [2]string
}

// ParseRoomKey parses the room key conventions:
//
//	global
//	group_<groupID>
//	private_user_<userA>_user_<userB>
//
// Keys matching none of the prefixes parse as RoomOpen. Private keys come
// back in canonical form, see PrivateRoomKey.
func ParseRoomKey(raw string) (RoomKey, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return RoomKey{}, ErrInvalidRoomKey
	}

	switch {
	case raw == GlobalRoomID:
		return RoomKey{Raw: raw, Kind: RoomGlobal}, nil

	case strings.HasPrefix(raw, groupPrefix):
		id := strings.TrimPrefix(raw, groupPrefix)
		if id == "" {
			return RoomKey{}, ErrInvalidRoomKey
		}
		return RoomKey{Raw: raw, Kind: RoomGroup, GroupID: id}, nil

	case strings.HasPrefix(raw, "private_"):
		rest, ok := strings.CutPrefix(raw, privatePrefix)
		if !ok {
			return RoomKey{}, ErrInvalidRoomKey
		}
		a, b, ok := strings.Cut(rest, privateSplitter)
		if !ok || a == "" || b == "" || strings.Contains(b, privateSplitter) {
			return RoomKey{}, ErrInvalidRoomKey
		}
		if b < a {
			a, b = b, a
		}
		// Both spellings of a pair name the same room.
		return RoomKey{Raw: PrivateRoomKey(a, b), Kind: RoomPrivate, Members: [2]string{a, b}}, nil
	}

	return RoomKey{Raw: raw, Kind: RoomOpen}, nil
}

// HasMember reports whether userID is one of the private room participants.
func (k RoomKey) HasMember(userID string) bool {
	if k.Kind != RoomPrivate || userID == "" {
		return false
	}
	return k.Members[0] == userID || k.Members[1] == userID
}

// GroupRoomKey returns the room key of a chat group.
func GroupRoomKey(groupID string) string {
	return groupPrefix + groupID
}

// PrivateRoomKey returns the canonical private room key for two users.
// The ids are sorted so both participants derive the same key.
func PrivateRoomKey(a, b string) string {
	ids := []string{a, b}
	sort.Strings(ids)
	return privatePrefix + ids[0] + privateSplitter + ids[1]
}
