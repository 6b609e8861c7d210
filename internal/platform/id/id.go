// Package id provides utilities for generating URL-safe identifiers.
//
// Identifiers are generated using UUIDv4 bytes encoded as base32 (RFC 4648)
// with no padding. The resulting strings are 26 characters long, lowercase,
// and safe for use in URLs, file paths, and wire payloads.
package id

import (
	"fmt"
	"strings"

	"encoding/base32"

	"github.com/google/uuid"
)

var encoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// NewID returns a fresh 26-character lowercase base32 identifier.
func NewID() (string, error) {
	value, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generate uuid: %w", err)
	}
	return strings.ToLower(encoding.EncodeToString(value[:])), nil
}

// NewPrefixedID returns a fresh identifier with a stable prefix, e.g.
// "cart_hx3..." so stored rows remain greppable by kind.
func NewPrefixedID(prefix string) (string, error) {
	value, err := NewID()
	if err != nil {
		return "", err
	}
	if prefix == "" {
		return value, nil
	}
	return prefix + "_" + value, nil
}
