// Package irc implements a minimal parser for IRCv3 tagged lines as used by
// the Twitch chat feed. Tag values are kept in their raw escaped form and
// in order of appearance, so a parsed line can be reproduced tag-for-tag.
package irc

import (
	"errors"
	"strings"
)

// ErrEmptyMessage is returned for lines with no command left after trimming.
var ErrEmptyMessage = errors.New("empty message")

// Tag is one key/value metadatum of a line. Value holds the raw escaped
// form; use UnescapeTag for the display form.
type Tag struct {
	Key   string
	Value string
}

// Message is one parsed protocol line.
type Message struct {
	// Tags in order of appearance, values escaped.
	Tags []Tag
	// Nick is the nickname part of a user prefix. Empty for lines with a
	// servername prefix or no prefix at all.
	Nick string
	// Command is the IRC command, e.g. "PRIVMSG".
	Command string
	// Channel is the first middle parameter starting with '#', without the
	// '#'. Empty for commands without a channel.
	Channel string
	// Params is the remainder after the command and channel parameter. The
	// leading ':' of a trailing parameter is kept.
	Params string
}

// Tag returns the raw value of the first tag with the given key.
func (m *Message) Tag(key string) (string, bool) {
	for _, t := range m.Tags {
		if t.Key == key {
			return t.Value, true
		}
	}
	return "", false
}

// Parse splits a raw line into tags, prefix, command and parameters.
// The line is trimmed of surrounding whitespace and NUL bytes first.
func Parse(raw string) (*Message, error) {
	line := strings.Trim(raw, " \r\n\t\x00")
	if line == "" {
		return nil, ErrEmptyMessage
	}

	msg := &Message{}

	if strings.HasPrefix(line, "@") {
		rawTags, rest, found := strings.Cut(line[1:], " ")
		if !found {
			return nil, ErrEmptyMessage
		}
		msg.Tags = parseTags(rawTags)
		line = strings.TrimLeft(rest, " ")
	}

	if strings.HasPrefix(line, ":") {
		prefix, rest, found := strings.Cut(line[1:], " ")
		if !found {
			return nil, ErrEmptyMessage
		}
		msg.Nick = prefixNick(prefix)
		line = strings.TrimLeft(rest, " ")
	}

	command, rest, _ := strings.Cut(line, " ")
	if command == "" {
		return nil, ErrEmptyMessage
	}
	msg.Command = command

	rest = strings.TrimLeft(rest, " ")
	if strings.HasPrefix(rest, "#") {
		channel, params, _ := strings.Cut(rest, " ")
		msg.Channel = strings.TrimPrefix(channel, "#")
		rest = strings.TrimLeft(params, " ")
	}
	msg.Params = rest

	return msg, nil
}

func parseTags(raw string) []Tag {
	parts := strings.Split(raw, ";")
	tags := make([]Tag, 0, len(parts))
	for _, part := range parts {
		if part == "" {
			continue
		}
		key, value, _ := strings.Cut(part, "=")
		tags = append(tags, Tag{Key: key, Value: value})
	}
	return tags
}

// prefixNick extracts the nickname from a nick!user@host prefix. A prefix
// with neither delimiter is a servername and carries no nick.
func prefixNick(prefix string) string {
	if i := strings.IndexAny(prefix, "!@"); i >= 0 {
		return prefix[:i]
	}
	return ""
}

// UnescapeTag decodes the IRCv3 tag value escaping scheme.
func UnescapeTag(value string) string {
	if !strings.ContainsRune(value, '\\') {
		return value
	}

	var b strings.Builder
	b.Grow(len(value))
	for i := 0; i < len(value); i++ {
		c := value[i]
		if c != '\\' || i == len(value)-1 {
			if c != '\\' {
				b.WriteByte(c)
			}
			continue
		}
		i++
		switch value[i] {
		case ':':
			b.WriteByte(';')
		case 's':
			b.WriteByte(' ')
		case 'r':
			b.WriteByte('\r')
		case 'n':
			b.WriteByte('\n')
		case '\\':
			b.WriteByte('\\')
		default:
			b.WriteByte(value[i])
		}
	}
	return b.String()
}
