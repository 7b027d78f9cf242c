package repo

import (
	"context"
	"errors"
	"testing"

	"direct-chat/internal/domain"
)

func TestListUsers_Error_NoTable(t *testing.T) {
	db := newRepoDB(t /* no migrations */)
	if _, err := ListUsers(context.Background(), db); err == nil {
		t.Fatalf("expected error when table missing")
	}
}

func TestListUsers_OrderedByName(t *testing.T) {
	db := newRepoDB(t, &domain.User{})

	seed := []domain.User{
		{ID: "u3", FirstName: "Carol", LastName: "Young"},
		{ID: "u1", FirstName: "Alice", LastName: "Baker"},
		{ID: "u2", FirstName: "Bob", LastName: "Baker"},
	}
	for _, u := range seed {
		if err := db.Create(&u).Error; err != nil {
			t.Fatalf("seed %s: %v", u.ID, err)
		}
	}

	list, err := ListUsers(context.Background(), db)
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 users, got %d", len(list))
	}
	// Baker/Alice, Baker/Bob, Young/Carol
	if list[0].ID != "u1" || list[1].ID != "u2" || list[2].ID != "u3" {
		t.Fatalf("unexpected order: %#v", list)
	}
}

func TestGetUser_FoundAndMissing(t *testing.T) {
	db := newRepoDB(t, &domain.User{})
	if err := db.Create(&domain.User{ID: "u1", FirstName: "Ada", LastName: "Lovelace"}).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	u, err := GetUser(context.Background(), db, "u1")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if u.DisplayName() != "Ada Lovelace" {
		t.Fatalf("unexpected user: %+v", u)
	}

	if _, err := GetUser(context.Background(), db, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
