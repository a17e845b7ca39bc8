package auth

import (
	"context"
	"errors"
	"testing"
)

func TestInMemoryEmailUniqueness(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	if err := s.Insert(ctx, &Account{Profile: Profile{ID: "a", Email: "a@x.io"}}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := s.Insert(ctx, &Account{Profile: Profile{ID: "b", Email: " A@X.IO"}}); !errors.Is(err, ErrEmailInUse) {
		t.Fatalf("expected ErrEmailInUse, got %v", err)
	}
	if err := s.Insert(ctx, &Account{Profile: Profile{ID: "b", Email: "b@x.io"}}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	taken := "a@x.io"
	if _, err := s.Update(ctx, "b", ProfileUpdate{Email: &taken}); !errors.Is(err, ErrEmailInUse) {
		t.Fatalf("expected ErrEmailInUse, got %v", err)
	}
	fresh := "c@x.io"
	if _, err := s.Update(ctx, "b", ProfileUpdate{Email: &fresh}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if _, err := s.FindByEmail(ctx, "b@x.io"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("old email still indexed: %v", err)
	}
	if got, err := s.FindByEmail(ctx, "C@x.io"); err != nil || got.ID != "b" {
		t.Fatalf("FindByEmail = %+v, %v", got, err)
	}
}

func TestInMemoryReturnsCopies(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	house := int64(7)
	if err := s.Insert(ctx, &Account{Profile: Profile{ID: "a", Email: "a@x.io", HouseID: &house}}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	got, _ := s.FindByID(ctx, "a")
	*got.HouseID = 99
	got.Email = "mutated"
	again, _ := s.FindByID(ctx, "a")
	if *again.HouseID != 7 || again.Email != "a@x.io" {
		t.Fatalf("store state leaked: %+v", again)
	}
}

func TestInMemoryMissing(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	if _, err := s.FindByID(ctx, "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("FindByID: %v", err)
	}
	if _, err := s.Update(ctx, "x", ProfileUpdate{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Update: %v", err)
	}
	if err := s.UpdatePassword(ctx, "x", "h"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("UpdatePassword: %v", err)
	}
	if err := s.Delete(ctx, "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Insert(ctx, nil); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("Insert nil: %v", err)
	}
}
