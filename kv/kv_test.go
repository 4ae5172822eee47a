package kv

import (
	"errors"
	"testing"
)

func TestMemory_RoundTrip(t *testing.T) {
	m := NewMemory()
	ctx := t.Context()

	if _, err := m.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get absent: err = %v, want ErrNotFound", err)
	}

	if err := m.Put(ctx, "k", []byte("v1")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := m.Put(ctx, "k", []byte("v2")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := m.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "v2" {
		t.Errorf("Get = %q, want v2", got)
	}

	if err := m.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := m.Delete(ctx, "k"); err != nil {
		t.Errorf("Delete absent: %v", err)
	}
	if _, err := m.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after delete: err = %v, want ErrNotFound", err)
	}
}

func TestMemory_CopiesValues(t *testing.T) {
	m := NewMemory()
	ctx := t.Context()

	buf := []byte("abc")
	if err := m.Put(ctx, "k", buf); err != nil {
		t.Fatal(err)
	}
	buf[0] = 'x'

	got, _ := m.Get(ctx, "k")
	got[1] = 'y'

	again, _ := m.Get(ctx, "k")
	if string(again) != "abc" {
		t.Errorf("stored value mutated: %q", again)
	}
}
