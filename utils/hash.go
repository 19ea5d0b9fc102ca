package utils

import (
	"strconv"
	"strings"

	"github.com/spaolacci/murmur3"
)

// HashText returns a short, stable fingerprint of text.
func HashText(text string) string {
	return strconv.FormatUint(murmur3.Sum64([]byte(text)), 16)
}

// EventID derives a stable id for an event from its identifying parts, so a
// redelivered event carries the same id.
func EventID(kind string, parts ...string) string {
	return kind + "-" + HashText(kind+"\x00"+strings.Join(parts, "\x00"))
}
