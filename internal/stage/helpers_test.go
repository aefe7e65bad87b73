package stage

import (
	"errors"
	"testing"

	"reelsight/internal/services"
)

type sample struct {
	Name string `json:"name"`
}

func TestAsAcceptsValueAndPointer(t *testing.T) {
	got, err := As[sample]("report", sample{Name: "a"})
	if err != nil || got.Name != "a" {
		t.Fatalf("value: got %+v err %v", got, err)
	}
	got, err = As[sample]("report", &sample{Name: "b"})
	if err != nil || got.Name != "b" {
		t.Fatalf("pointer: got %+v err %v", got, err)
	}
}

func TestAsRejectsMismatch(t *testing.T) {
	_, err := As[sample]("report", 42)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation marker, got %v", err)
	}
}

func TestDecodeJSON(t *testing.T) {
	got, err := DecodeJSON[sample]("enhance", []byte(`{"name":"frames"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Name != "frames" {
		t.Fatalf("unexpected name: %q", got.Name)
	}
	if _, err := DecodeJSON[sample]("enhance", []byte("{invalid")); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
