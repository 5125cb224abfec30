package wizard

import (
	"strconv"
	"strings"
)

const idSeparator = "::"

// MakeCustomID builds the routing string attached to a control:
// "<namespace>::<action>[::<payload>]".
func MakeCustomID(namespace, action string, payload ...string) string {
	id := namespace + idSeparator + action
	if len(payload) > 0 && payload[0] != "" {
		id += idSeparator + payload[0]
	}
	return id
}

// TokenCustomID builds a routing string carrying a routing token.
func TokenCustomID(namespace, action string, token int) string {
	return MakeCustomID(namespace, action, strconv.Itoa(token))
}

// ParseCustomID splits a routing string. ok is false when the string
// belongs to another namespace or is malformed.
func ParseCustomID(namespace, id string) (action, payload string, ok bool) {
	parts := strings.SplitN(id, idSeparator, 3)
	if len(parts) < 2 || parts[0] != namespace || parts[1] == "" {
		return "", "", false
	}
	if len(parts) == 3 {
		payload = parts[2]
	}
	return parts[1], payload, true
}

// Namespace returns the namespace part of a routing string.
func Namespace(id string) string {
	ns, _, found := strings.Cut(id, idSeparator)
	if !found {
		return ""
	}
	return ns
}

// ParseToken extracts the routing token of a string built by
// TokenCustomID for the given action.
func ParseToken(namespace, action, id string) (int, bool) {
	got, payload, ok := ParseCustomID(namespace, id)
	if !ok || got != action {
		return 0, false
	}
	token, err := strconv.Atoi(payload)
	if err != nil || token <= 0 {
		return 0, false
	}
	return token, true
}
