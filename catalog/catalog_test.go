package catalog_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/xraph/courier/catalog"
)

var messageSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"chat_id": {"type": "string"},
		"text": {"type": "string"}
	},
	"required": ["chat_id"]
}`)

func TestBuiltinRegistered(t *testing.T) {
	c := catalog.New(nil, catalog.Builtin()...)

	want := []string{
		"account-created", "account-login",
		"conversation-created", "conversation-updated",
		"message-sent", "message-received",
		"backup-created", "backup-restored",
		"subscription-created", "subscription-failed",
	}
	for _, name := range want {
		if !c.Known(name) {
			t.Errorf("%s not registered", name)
		}
	}
	if c.Known("message-*") {
		t.Fatal("patterns must not be known names")
	}

	list := c.List()
	if len(list) != len(want) {
		t.Fatalf("list has %d entries", len(list))
	}
	for i := 1; i < len(list); i++ {
		if list[i-1].Name > list[i].Name {
			t.Fatalf("list not sorted at %d", i)
		}
	}
}

func TestLookupUnknown(t *testing.T) {
	c := catalog.New(nil)
	if _, err := c.Lookup("nope"); !errors.Is(err, catalog.ErrUnknownType) {
		t.Fatalf("expected ErrUnknownType, got %v", err)
	}
}

func TestRegisterRejectsBadInput(t *testing.T) {
	c := catalog.New(nil)

	if err := c.Register(catalog.Definition{Name: " "}); err == nil {
		t.Fatal("expected error for blank name")
	}
	if err := c.Register(catalog.Definition{Name: "x.y", Schema: json.RawMessage(`{"type": 12}`)}); err == nil {
		t.Fatal("expected error for invalid schema")
	}
}

func TestValidate(t *testing.T) {
	c := catalog.New(nil, catalog.Definition{Name: catalog.MessageReceived, Schema: messageSchema})

	if err := c.Validate(catalog.MessageReceived, []byte(`{"chat_id":"1","text":"hi"}`)); err != nil {
		t.Fatalf("valid payload rejected: %v", err)
	}
	if err := c.Validate(catalog.MessageReceived, []byte(`{"text":"hi"}`)); err == nil {
		t.Fatal("missing required field accepted")
	}
	if err := c.Validate(catalog.MessageReceived, []byte(`{"chat_id":5}`)); err == nil {
		t.Fatal("wrong type accepted")
	}
	if err := c.Validate("unregistered.type", []byte(`"anything"`)); err != nil {
		t.Fatalf("unknown type should pass: %v", err)
	}
}

func TestValidatorCachesSchema(t *testing.T) {
	v := catalog.NewValidator()

	for i := 0; i < 3; i++ {
		if err := v.Validate(messageSchema, []byte(`{"chat_id":"c"}`)); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}
	if err := v.Validate(nil, []byte(`{}`)); err != nil {
		t.Fatalf("empty schema should pass: %v", err)
	}
	if err := v.Validate(messageSchema, []byte(`{broken`)); err == nil {
		t.Fatal("expected decode error")
	}
}
