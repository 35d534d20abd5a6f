package domain

import (
	"github.com/google/uuid"
)

// MessageFlags is a bitset of boolean IRC tags attached to a message.
// On the wire each flag is carried as a separate tag with value "1";
// an unset flag means the tag was absent (or explicitly "0").
type MessageFlags uint16

const (
	FlagSubscriber MessageFlags = 1 << iota
	FlagVIP
	FlagMod
	FlagTurbo
	FlagFirstMsg
	FlagReturningChatter
	FlagEmoteOnly
	FlagR9K
	FlagSubsOnly
	FlagSlowMode
)

// Has reports whether all bits in flag are set.
func (f MessageFlags) Has(flag MessageFlags) bool {
	return f&flag == flag
}

// Set returns f with the given bits set.
func (f MessageFlags) Set(flag MessageFlags) MessageFlags {
	return f | flag
}

// MessageType identifies the IRC command a message was decoded from.
// The numeric values are part of the stored row format and must not change.
type MessageType uint8

const (
	TypeWhisper MessageType = iota
	TypePrivMsg
	TypeClearChat
	TypeRoomState
	TypeUserNotice
	TypeUserState
	TypeNotice
	TypeJoin
	TypePart
	TypeReconnect
	TypeNames
	TypePing
	TypePong
	TypeClearMsg
	TypeGlobalUserState
)

var messageTypeNames = map[MessageType]string{
	TypeWhisper:         "WHISPER",
	TypePrivMsg:         "PRIVMSG",
	TypeClearChat:       "CLEARCHAT",
	TypeRoomState:       "ROOMSTATE",
	TypeUserNotice:      "USERNOTICE",
	TypeUserState:       "USERSTATE",
	TypeNotice:          "NOTICE",
	TypeJoin:            "JOIN",
	TypePart:            "PART",
	TypeReconnect:       "RECONNECT",
	TypeNames:           "353",
	TypePing:            "PING",
	TypePong:            "PONG",
	TypeClearMsg:        "CLEARMSG",
	TypeGlobalUserState: "GLOBALUSERSTATE",
}

func (t MessageType) String() string {
	if name, ok := messageTypeNames[t]; ok {
		return name
	}
	return "UNKNOWN"
}

// MessageTypeFromCommand maps an IRC command to a MessageType.
func MessageTypeFromCommand(command string) (MessageType, bool) {
	for t, name := range messageTypeNames {
		if name == command {
			return t, true
		}
	}
	return 0, false
}

// ExtraTag is a protocol tag that has no typed column of its own.
// Order of appearance in the raw message is preserved.
type ExtraTag struct {
	Key   string
	Value string
}

// Message is the canonical structured record of one chat event.
// It round-trips losslessly to the wire tag set, with the documented
// exception of boolean flag tags explicitly valued "0".
type Message struct {
	ChannelID    string
	ChannelLogin string
	// Timestamp is the receive time in milliseconds since the unix epoch.
	Timestamp    int64
	ID           uuid.UUID
	Type         MessageType
	UserID       string
	UserLogin    string
	DisplayName  string
	Color        *uint32
	UserType     string
	Badges       []string
	BadgeInfo    string
	ClientNonce  string
	Emotes       string
	AutomodFlags string
	Text         string
	Flags        MessageFlags
	ExtraTags    []ExtraTag
}

// Unstructured is a raw protocol line as received from the chat feed,
// before any parsing. It is consumed exactly once by the codec.
type Unstructured struct {
	ChannelID string
	UserID    string
	Timestamp int64
	Raw       string
}
