// Package idgen generates public identifiers.
package idgen

import (
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// NewUserID returns a lowercase ULID: a 48-bit millisecond timestamp followed
// by 80 random bits. IDs minted later sort after earlier ones.
func NewUserID() string {
	return strings.ToLower(ulid.Make().String())
}

// UserIDTime recovers the creation instant encoded in id.
func UserIDTime(id string) (time.Time, error) {
	parsed, err := ulid.ParseStrict(strings.ToUpper(id))
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}
