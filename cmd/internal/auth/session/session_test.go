package session

import (
	"testing"
	"time"
)

func TestSession_HasRole(t *testing.T) {
	t.Parallel()

	now := time.Now()
	librarian := newSession("id", "tok", 1, "lib", "Librarian", now)
	super := newSession("id", "tok", 2, "root", RoleSuperAdmin, now)

	if !librarian.HasRole("Librarian") {
		t.Fatalf("librarian should satisfy Librarian")
	}
	if librarian.HasRole("Admin") {
		t.Fatalf("librarian must not satisfy Admin")
	}
	for _, role := range []string{"Admin", "Librarian", "Auditor", ""} {
		if !super.HasRole(role) {
			t.Fatalf("super admin should satisfy %q", role)
		}
	}
}

func TestSession_Attributes(t *testing.T) {
	t.Parallel()

	s := newSession("id", "tok", 1, "lib", "Librarian", time.Now())

	if _, ok := s.Attribute("cart"); ok {
		t.Fatalf("expected missing attribute")
	}

	s.SetAttribute("cart", []int{1, 2})
	s.SetAttribute("theme", "dark")
	s.SetAttribute("theme", "light")

	v, ok := s.Attribute("theme")
	if !ok || v != "light" {
		t.Fatalf("theme=%v ok=%v", v, ok)
	}

	all := s.Attributes()
	if len(all) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(all))
	}
	all["injected"] = true
	if _, ok := s.Attribute("injected"); ok {
		t.Fatalf("Attributes must return a copy")
	}

	s.RemoveAttribute("theme")
	s.RemoveAttribute("never-set")
	if _, ok := s.Attribute("theme"); ok {
		t.Fatalf("expected theme removed")
	}
}
