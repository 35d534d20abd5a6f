// Package codec converts raw chat protocol lines into structured messages
// and back into the protocol's tag set. Both directions are pure and share
// a single fixed tag table: every recognized tag maps to exactly one typed
// field or one flag bit, everything else is preserved verbatim as an extra
// tag.
package codec

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/user/chatvault/internal/domain"
	"github.com/user/chatvault/internal/irc"
)

var (
	// ErrParse marks a line the parser could not make sense of.
	ErrParse = errors.New("could not parse message")

	// ErrUnknownMessageType marks a command outside the known set.
	ErrUnknownMessageType = errors.New("unknown message type")

	// ErrMissingTag marks a message lacking a tag its type requires.
	ErrMissingTag = errors.New("missing required tag")
)

// Tag name constants of the typed columns.
const (
	tagID          = "id"
	tagLogin       = "login"
	tagDisplayName = "display-name"
	tagColor       = "color"
	tagUserType    = "user-type"
	tagBadges      = "badges"
	tagBadgeInfo   = "badge-info"
	tagEmotes      = "emotes"
	tagClientNonce = "client-nonce"
	tagFlags       = "flags"
	tagRoomID      = "room-id"
	tagUserID      = "user-id"
	tagTmiSentTs   = "tmi-sent-ts"
	tagSentTs      = "sent-ts"
	tagBanDuration = "ban-duration"
	tagSystemMsg   = "system-msg"
)

// flagTags maps boolean tags to flag bits, in the wire emission order.
var flagTags = []struct {
	name string
	flag domain.MessageFlags
}{
	{"subscriber", domain.FlagSubscriber},
	{"vip", domain.FlagVIP},
	{"mod", domain.FlagMod},
	{"turbo", domain.FlagTurbo},
	{"first-msg", domain.FlagFirstMsg},
	{"returning-chatter", domain.FlagReturningChatter},
	{"emote-only", domain.FlagEmoteOnly},
	{"r9k", domain.FlagR9K},
	{"subs-only", domain.FlagSubsOnly},
	{"slow", domain.FlagSlowMode},
}

func flagForTag(name string) (domain.MessageFlags, bool) {
	for _, ft := range flagTags {
		if ft.name == name {
			return ft.flag, true
		}
	}
	return 0, false
}

// Decode parses the raw line of an unstructured record into a message.
// Failures are per-line defects: the caller should log and skip, never
// treat them as fatal.
func Decode(u domain.Unstructured) (*domain.Message, error) {
	parsed, err := irc.Parse(u.Raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	msgType, ok := domain.MessageTypeFromCommand(parsed.Command)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMessageType, parsed.Command)
	}

	msg := &domain.Message{
		ChannelID:    u.ChannelID,
		ChannelLogin: parsed.Channel,
		Timestamp:    u.Timestamp,
		Type:         msgType,
		UserID:       u.UserID,
		UserLogin:    parsed.Nick,
	}

	switch msgType {
	case domain.TypePrivMsg:
		msg.Text = extractText(parsed.Params)
	case domain.TypeClearChat:
		if parsed.Params != "" {
			target := extractText(parsed.Params)
			msg.UserLogin = target
			if duration, ok := parsed.Tag(tagBanDuration); ok {
				msg.Text = fmt.Sprintf("%s has been timed out for %s seconds", target, duration)
			} else {
				msg.Text = fmt.Sprintf("%s has been banned", target)
			}
		} else {
			msg.Text = "Chat has been cleared"
		}
	case domain.TypeUserNotice:
		rawSystemMsg, ok := parsed.Tag(tagSystemMsg)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingTag, tagSystemMsg)
		}
		systemMsg := irc.UnescapeTag(rawSystemMsg)
		if parsed.Params != "" {
			msg.Text = systemMsg + " " + extractText(parsed.Params)
		} else {
			msg.Text = systemMsg
		}
	}

	for _, tag := range parsed.Tags {
		switch tag.Key {
		case tagID:
			if id, err := uuid.Parse(tag.Value); err == nil {
				msg.ID = id
			} else {
				msg.ExtraTags = append(msg.ExtraTags, domain.ExtraTag{Key: tagID, Value: tag.Value})
			}
		case tagLogin:
			msg.UserLogin = tag.Value
		case tagDisplayName:
			msg.DisplayName = tag.Value
		case tagColor:
			// An unparsable color is dropped, not an error.
			raw := strings.TrimPrefix(tag.Value, "#")
			if color, err := strconv.ParseUint(raw, 16, 32); err == nil {
				c := uint32(color)
				msg.Color = &c
			}
		case tagUserType:
			msg.UserType = tag.Value
		case tagBadges:
			msg.Badges = strings.Split(tag.Value, ",")
		case tagBadgeInfo:
			msg.BadgeInfo = tag.Value
		case tagEmotes:
			msg.Emotes = tag.Value
		case tagClientNonce:
			msg.ClientNonce = tag.Value
		case tagFlags:
			msg.AutomodFlags = tag.Value
		case tagRoomID, tagUserID, tagTmiSentTs, tagSentTs:
			// Redundant with typed fields.
		default:
			if flag, ok := flagForTag(tag.Key); ok {
				if tag.Value == "1" {
					msg.Flags = msg.Flags.Set(flag)
				}
			} else {
				msg.ExtraTags = append(msg.ExtraTags, domain.ExtraTag{Key: tag.Key, Value: tag.Value})
			}
		}
	}

	return msg, nil
}

// Tags produces the full protocol tag set of a message, for replay and
// raw responses. Every tag of the original line with a non-default value
// is reproduced; boolean flag tags that were explicitly "0" are not.
func Tags(msg *domain.Message) []irc.Tag {
	tags := make([]irc.Tag, 0, 16+len(msg.ExtraTags))

	tags = append(tags, irc.Tag{Key: tagTmiSentTs, Value: strconv.FormatInt(msg.Timestamp, 10)})

	for _, ft := range flagTags {
		if msg.Flags.Has(ft.flag) {
			tags = append(tags, irc.Tag{Key: ft.name, Value: "1"})
		}
	}

	if msg.ID != uuid.Nil {
		tags = append(tags, irc.Tag{Key: tagID, Value: msg.ID.String()})
	}
	if msg.ChannelID != "" {
		tags = append(tags, irc.Tag{Key: tagRoomID, Value: msg.ChannelID})
	}
	if msg.UserID != "" {
		tags = append(tags, irc.Tag{Key: tagUserID, Value: msg.UserID})
	}
	if msg.UserLogin != "" {
		tags = append(tags, irc.Tag{Key: tagLogin, Value: msg.UserLogin})
	}
	if msg.ClientNonce != "" {
		tags = append(tags, irc.Tag{Key: tagClientNonce, Value: msg.ClientNonce})
	}
	if msg.DisplayName != "" {
		tags = append(tags, irc.Tag{Key: tagDisplayName, Value: msg.DisplayName})
	}

	tags = append(tags,
		irc.Tag{Key: tagBadges, Value: strings.Join(msg.Badges, ",")},
		irc.Tag{Key: tagBadgeInfo, Value: msg.BadgeInfo},
	)

	if msg.Color != nil {
		tags = append(tags, irc.Tag{Key: tagColor, Value: fmt.Sprintf("#%04X", *msg.Color)})
	}

	tags = append(tags,
		irc.Tag{Key: tagFlags, Value: msg.AutomodFlags},
		irc.Tag{Key: tagUserType, Value: msg.UserType},
		irc.Tag{Key: tagEmotes, Value: msg.Emotes},
	)

	for _, extra := range msg.ExtraTags {
		tags = append(tags, irc.Tag{Key: extra.Key, Value: extra.Value})
	}

	return tags
}

// RawLine reassembles a message into a full protocol line, tags included.
func RawLine(msg *domain.Message) string {
	var b strings.Builder

	tags := Tags(msg)
	for i, tag := range tags {
		if i == 0 {
			b.WriteByte('@')
		} else {
			b.WriteByte(';')
		}
		b.WriteString(tag.Key)
		b.WriteByte('=')
		b.WriteString(tag.Value)
	}
	b.WriteByte(' ')

	if msg.UserLogin != "" {
		fmt.Fprintf(&b, ":%s!%s@%s.tmi.twitch.tv ", msg.UserLogin, msg.UserLogin, msg.UserLogin)
	} else {
		b.WriteString(":tmi.twitch.tv ")
	}

	b.WriteString(msg.Type.String())
	if msg.ChannelLogin != "" {
		b.WriteString(" #")
		b.WriteString(msg.ChannelLogin)
	}
	if msg.Text != "" {
		b.WriteString(" :")
		b.WriteString(msg.Text)
	}

	return b.String()
}

func extractText(params string) string {
	text := strings.TrimLeft(strings.TrimPrefix(params, ":"), " ")

	if strings.HasPrefix(text, "\x01ACTION ") && strings.HasSuffix(text, "\x01") {
		text = text[len("\x01ACTION ") : len(text)-1]
	}

	return text
}
