package identity

import (
	"context"
	"testing"
)

func TestMemoryStoreFindByID(t *testing.T) {
	t.Parallel()

	st := NewMemoryStore()
	st.Put(User{ID: "u1", Username: "ada", Avatar: "https://cdn/a.png"})

	got, err := st.FindByID(context.Background(), "u1")
	if err != nil {
		t.Fatalf("FindByID(u1): %v", err)
	}
	if got.Username != "ada" {
		t.Fatalf("username=%q want=%q", got.Username, "ada")
	}

	_, err = st.FindByID(context.Background(), "ghost")
	if !IsNotFound(err) {
		t.Fatalf("FindByID(ghost) err=%v, want ErrNotFound", err)
	}
}

func TestMemoryStoreIgnoresEmptyID(t *testing.T) {
	t.Parallel()

	st := NewMemoryStore()
	st.Put(User{ID: "  "})

	if _, err := st.FindByID(context.Background(), "  "); !IsNotFound(err) {
		t.Fatalf("expected not found for blank id, got %v", err)
	}
}
