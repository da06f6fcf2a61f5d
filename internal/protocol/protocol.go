// Package protocol implements the chat wire protocol: line-oriented text
// frames of the form "<type>:<k1>=<v1>;<k2>=<v2>;..." where <type> is a
// decimal message-type code.
package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// Type is a numeric message-type code.
type Type int

// Message type registry. The codes are part of the wire protocol and
// must not be renumbered.
const (
	TypeLoginRequest        Type = 1
	TypeLoginResponse       Type = 2
	TypeLogoutRequest       Type = 3
	TypeLogoutResponse      Type = 4
	TypeError               Type = 5
	TypeHeartbeatRequest    Type = 6
	TypeHeartbeatResponse   Type = 7
	TypeRegisterRequest     Type = 8
	TypeRegisterResponse    Type = 9
	TypeVerifyCodeRequest   Type = 10
	TypeVerifyCodeResponse  Type = 11
	TypePrivateChat         Type = 12
	TypeGroupChat           Type = 13
	TypeCreateGroup         Type = 14
	TypeCreateGroupResponse Type = 15
	TypeJoinGroup           Type = 16
	TypeJoinGroupResponse   Type = 17
	TypeLeaveGroup          Type = 18
	TypeLeaveGroupResponse  Type = 19
	TypeGetUserList         Type = 20
	TypeUserListResponse    Type = 21
	TypeGetGroupList        Type = 22
	TypeGroupListResponse   Type = 23
	TypeGetGroupMembers     Type = 24
	TypeGroupMembersResp    Type = 25
	TypeGetUserFriends      Type = 26
	TypeUserFriendsResponse Type = 27
	// TypeAddFriend is the friend-request entry point. Historically this
	// code was aliased to a separate ADD_FRIEND_REQUEST; the alias is
	// retired and 28 is the canonical code. The optional "action" field
	// selects request/accept/reject/remove/pending.
	TypeAddFriend           Type = 28
	TypeAddFriendResponse   Type = 29
	TypeGetChatHistory      Type = 30
	TypeChatHistoryResponse Type = 31
	TypeRecallMessage       Type = 32
	TypeRecallMessageResp   Type = 33
	TypeMarkMessageRead     Type = 34
	TypeMarkMessageReadResp Type = 35
)

// Status field values.
const (
	StatusOK     = "0"
	StatusFailed = "1"
)

var typeNames = map[Type]string{
	TypeLoginRequest:        "LOGIN_REQUEST",
	TypeLoginResponse:       "LOGIN_RESPONSE",
	TypeLogoutRequest:       "LOGOUT_REQUEST",
	TypeLogoutResponse:      "LOGOUT_RESPONSE",
	TypeError:               "ERROR",
	TypeHeartbeatRequest:    "HEARTBEAT_REQUEST",
	TypeHeartbeatResponse:   "HEARTBEAT_RESPONSE",
	TypeRegisterRequest:     "REGISTER_REQUEST",
	TypeRegisterResponse:    "REGISTER_RESPONSE",
	TypeVerifyCodeRequest:   "VERIFY_CODE_REQUEST",
	TypeVerifyCodeResponse:  "VERIFY_CODE_RESPONSE",
	TypePrivateChat:         "PRIVATE_CHAT",
	TypeGroupChat:           "GROUP_CHAT",
	TypeCreateGroup:         "CREATE_GROUP",
	TypeCreateGroupResponse: "CREATE_GROUP_RESPONSE",
	TypeJoinGroup:           "JOIN_GROUP",
	TypeJoinGroupResponse:   "JOIN_GROUP_RESPONSE",
	TypeLeaveGroup:          "LEAVE_GROUP",
	TypeLeaveGroupResponse:  "LEAVE_GROUP_RESPONSE",
	TypeGetUserList:         "GET_USER_LIST",
	TypeUserListResponse:    "USER_LIST_RESPONSE",
	TypeGetGroupList:        "GET_GROUP_LIST",
	TypeGroupListResponse:   "GROUP_LIST_RESPONSE",
	TypeGetGroupMembers:     "GET_GROUP_MEMBERS",
	TypeGroupMembersResp:    "GROUP_MEMBERS_RESPONSE",
	TypeGetUserFriends:      "GET_USER_FRIENDS",
	TypeUserFriendsResponse: "USER_FRIENDS_RESPONSE",
	TypeAddFriend:           "ADD_FRIEND",
	TypeAddFriendResponse:   "ADD_FRIEND_RESPONSE",
	TypeGetChatHistory:      "GET_CHAT_HISTORY",
	TypeChatHistoryResponse: "CHAT_HISTORY_RESPONSE",
	TypeRecallMessage:       "RECALL_MESSAGE",
	TypeRecallMessageResp:   "RECALL_MESSAGE_RESPONSE",
	TypeMarkMessageRead:     "MARK_MESSAGE_READ",
	TypeMarkMessageReadResp: "MARK_MESSAGE_READ_RESPONSE",
}

// String returns the registry name of the type, or the decimal code for
// unknown types.
func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return strconv.Itoa(int(t))
}

// Known reports whether the type code is in the registry.
func (t Type) Known() bool {
	_, ok := typeNames[t]
	return ok
}

// Frame is a single wire frame: a type code plus ordered key-value fields.
// Field order is preserved so encoded frames are deterministic.
type Frame struct {
	Type Type

	keys   []string
	fields map[string]string
}

// New creates an empty frame of the given type.
func New(t Type) *Frame {
	return &Frame{Type: t, fields: make(map[string]string)}
}

// Set stores a field value, preserving first-set order. Returns the
// frame for chaining.
func (f *Frame) Set(key, value string) *Frame {
	if _, ok := f.fields[key]; !ok {
		f.keys = append(f.keys, key)
	}
	f.fields[key] = value
	return f
}

// SetInt stores an integer field value.
func (f *Frame) SetInt(key string, value int64) *Frame {
	return f.Set(key, strconv.FormatInt(value, 10))
}

// Get returns a field value and whether it was present.
func (f *Frame) Get(key string) (string, bool) {
	v, ok := f.fields[key]
	return v, ok
}

// GetInt returns a field parsed as a base-10 integer.
func (f *Frame) GetInt(key string) (int64, error) {
	v, ok := f.fields[key]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrMissingField, key)
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("field %s: %w", key, ErrBadField)
	}
	return n, nil
}

// Keys returns the field keys in first-set order.
func (f *Frame) Keys() []string {
	return f.keys
}

// Len returns the number of fields.
func (f *Frame) Len() int {
	return len(f.keys)
}

// Encode renders the frame in wire form, without a trailing newline.
func (f *Frame) Encode() string {
	var sb strings.Builder
	sb.WriteString(strconv.Itoa(int(f.Type)))
	sb.WriteString(":")
	for i, k := range f.keys {
		if i > 0 {
			sb.WriteString(";")
		}
		sb.WriteString(k)
		sb.WriteString("=")
		sb.WriteString(f.fields[k])
	}
	return sb.String()
}

// Parse decodes one wire frame from a line (without its newline).
// A frame with no payload ("6" or "6:") parses to an empty field set.
func Parse(line string) (*Frame, error) {
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return nil, ErrEmptyFrame
	}

	typePart := line
	payload := ""
	if idx := strings.Index(line, ":"); idx >= 0 {
		typePart = line[:idx]
		payload = line[idx+1:]
	}

	code, err := strconv.Atoi(typePart)
	if err != nil {
		return nil, fmt.Errorf("%w: bad type %q", ErrMalformedFrame, typePart)
	}

	f := New(Type(code))
	if payload == "" {
		return f, nil
	}

	for _, part := range strings.Split(payload, ";") {
		if part == "" {
			continue
		}
		eq := strings.Index(part, "=")
		if eq <= 0 {
			return nil, fmt.Errorf("%w: bad field %q", ErrMalformedFrame, part)
		}
		f.Set(part[:eq], part[eq+1:])
	}

	return f, nil
}

// ValidValue reports whether a user-supplied value may be carried in a
// frame. The format has no escaping, so delimiter characters are
// rejected outright.
func ValidValue(s string) bool {
	return !strings.ContainsAny(s, ";=\r\n")
}
