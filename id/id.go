// Package id provides prefixed, sortable identifiers for courier records.
//
// Subscriptions and deliveries are identified by TypeIDs ("sub_…", "del_…").
// The suffix is UUIDv7-based, so IDs sort by creation time and are safe to
// embed in URLs.
package id

import (
	"database/sql/driver"
	"fmt"

	"go.jetify.com/typeid/v2"
)

// Prefix is the type tag carried by an ID.
type Prefix string

const (
	PrefixSubscription Prefix = "sub"
	PrefixDelivery     Prefix = "del"
)

// ID wraps a TypeID. The zero value is Nil.
//
//nolint:recvcheck // UnmarshalText and Scan need pointer receivers.
type ID struct {
	inner typeid.TypeID
	valid bool
}

// Nil is the empty ID.
var Nil ID

// New generates an ID with the given prefix. An invalid prefix is a
// programming error and panics.
func New(prefix Prefix) ID {
	tid, err := typeid.Generate(string(prefix))
	if err != nil {
		panic(fmt.Sprintf("id: generate %q: %v", prefix, err))
	}

	return ID{inner: tid, valid: true}
}

// Parse parses any "prefix_suffix" string.
func Parse(s string) (ID, error) {
	if s == "" {
		return Nil, fmt.Errorf("id: parse: empty string")
	}

	tid, err := typeid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("id: parse %q: %w", s, err)
	}

	return ID{inner: tid, valid: true}, nil
}

// ParseWithPrefix parses s and rejects it unless its prefix is want.
func ParseWithPrefix(s string, want Prefix) (ID, error) {
	parsed, err := Parse(s)
	if err != nil {
		return Nil, err
	}

	if got := parsed.Prefix(); got != want {
		return Nil, fmt.Errorf("id: %q has prefix %q, want %q", s, got, want)
	}

	return parsed, nil
}

// MustParse panics when s does not parse. Intended for fixtures.
func MustParse(s string) ID {
	parsed, err := Parse(s)
	if err != nil {
		panic(err)
	}

	return parsed
}

// ──────────────────────────────────────────────────
// Constructors and parsers
// ──────────────────────────────────────────────────

// NewSubscriptionID returns a fresh "sub" ID.
func NewSubscriptionID() ID { return New(PrefixSubscription) }

// NewDeliveryID returns a fresh "del" ID.
func NewDeliveryID() ID { return New(PrefixDelivery) }

// ParseSubscriptionID parses s and requires the "sub" prefix.
func ParseSubscriptionID(s string) (ID, error) { return ParseWithPrefix(s, PrefixSubscription) }

// ParseDeliveryID parses s and requires the "del" prefix.
func ParseDeliveryID(s string) (ID, error) { return ParseWithPrefix(s, PrefixDelivery) }

// ──────────────────────────────────────────────────
// Methods
// ──────────────────────────────────────────────────

// String renders the ID, or "" for Nil.
func (i ID) String() string {
	if !i.valid {
		return ""
	}

	return i.inner.String()
}

// Prefix returns the type tag, or "" for Nil.
func (i ID) Prefix() Prefix {
	if !i.valid {
		return ""
	}

	return Prefix(i.inner.Prefix())
}

// IsNil reports whether i is the zero value.
func (i ID) IsNil() bool { return !i.valid }

// MarshalText implements encoding.TextMarshaler.
func (i ID) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Empty input yields Nil.
func (i *ID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*i = Nil
		return nil
	}

	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}

	*i = parsed

	return nil
}

// Value implements driver.Valuer. Nil is stored as NULL.
func (i ID) Value() (driver.Value, error) {
	if !i.valid {
		return nil, nil //nolint:nilnil // NULL
	}

	return i.inner.String(), nil
}

// Scan implements sql.Scanner.
func (i *ID) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*i = Nil
		return nil
	case string:
		return i.UnmarshalText([]byte(v))
	case []byte:
		return i.UnmarshalText(v)
	default:
		return fmt.Errorf("id: cannot scan %T", src)
	}
}
