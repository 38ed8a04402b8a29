// Package id issues client keys.
//
// Server-issued keys are TypeIDs with the "ck" prefix, sortable by
// creation time and URL-safe: "ck_01h2xcejqtf2nbrexx3vqjhp41". Keys that
// clients generate themselves are accepted verbatim by the engine and need
// not parse here.
package id

import (
	"fmt"

	"go.jetify.com/typeid/v2"
)

// PrefixClientKey is the TypeID prefix of issued client keys.
const PrefixClientKey = "ck"

// NewClientKey issues a new client key.
func NewClientKey() string {
	tid, err := typeid.Generate(PrefixClientKey)
	if err != nil {
		panic(fmt.Sprintf("id: generate client key: %v", err))
	}
	return tid.String()
}

// ParseClientKey validates s as an issued client key and returns the
// underlying TypeID.
func ParseClientKey(s string) (typeid.TypeID, error) {
	var zero typeid.TypeID
	tid, err := typeid.Parse(s)
	if err != nil {
		return zero, fmt.Errorf("id: parse %q: %w", s, err)
	}
	if tid.Prefix() != PrefixClientKey {
		return zero, fmt.Errorf("id: expected prefix %q, got %q", PrefixClientKey, tid.Prefix())
	}
	return tid, nil
}

// IsIssuedClientKey reports whether s came from NewClientKey.
func IsIssuedClientKey(s string) bool {
	_, err := ParseClientKey(s)
	return err == nil
}
