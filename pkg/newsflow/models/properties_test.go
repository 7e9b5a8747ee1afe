package models

import (
	"reflect"
	"testing"
)

func TestPropertiesFrom_MultiValuedKeepsOrder(t *testing.T) {
	p := PropertiesFrom([]Property{
		{Key: "recipient", Value: "desk@example.com"},
		{Key: "subject", Value: "Published"},
		{Key: "recipient", Value: "editor@example.com"},
	})

	want := []string{"desk@example.com", "editor@example.com"}
	if got := p.All("recipient"); !reflect.DeepEqual(got, want) {
		t.Fatalf("All(recipient) = %v, want %v", got, want)
	}
	if got := p.Get("recipient"); got != "desk@example.com" {
		t.Fatalf("Get should return the first value, got %q", got)
	}
	if p.Get("missing") != "" || p.Has("missing") {
		t.Fatal("missing key should be absent")
	}
}

func TestProperties_TypedAccessors(t *testing.T) {
	p := PropertiesFrom([]Property{
		{Key: "catalogue_id", Value: " 42 "},
		{Key: "enabled", Value: "true"},
		{Key: "blank", Value: "  "},
	})
	if v, ok := p.Int64("catalogue_id"); !ok || v != 42 {
		t.Fatalf("Int64 = %d, %v", v, ok)
	}
	if _, ok := p.Int64("enabled"); ok {
		t.Fatal("non-numeric value should not parse")
	}
	if !p.Bool("enabled") || p.Bool("catalogue_id") {
		t.Fatal("Bool mismatch")
	}
	if got := p.GetOr("blank", "fallback"); got != "fallback" {
		t.Fatalf("GetOr blank = %q", got)
	}
}
