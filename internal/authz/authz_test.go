package authz

import "testing"

func TestAdminIsAlwaysMember(t *testing.T) {
	m := NewMembership("grp_1", "usr_admin", []string{"usr_admin", "usr_b"})
	if !m.IsAdmin("usr_admin") {
		t.Fatal("expected usr_admin to be admin")
	}
	if !m.IsMember("usr_admin") {
		t.Fatal("admin must be a member")
	}
}

func TestRequireMember(t *testing.T) {
	m := NewMembership("grp_1", "usr_a", []string{"usr_a", "usr_b"})
	if err := m.RequireMember("usr_b"); err != nil {
		t.Fatalf("RequireMember(member) error = %v", err)
	}
	if err := m.RequireMember("usr_c"); err != ErrNotFoundOrForbidden {
		t.Fatalf("expected ErrNotFoundOrForbidden, got %v", err)
	}
}

func TestRequireAdmin(t *testing.T) {
	m := NewMembership("grp_1", "usr_a", []string{"usr_a", "usr_b"})
	if err := m.RequireAdmin("usr_a"); err != nil {
		t.Fatalf("RequireAdmin(admin) error = %v", err)
	}
	if err := m.RequireAdmin("usr_b"); err != ErrAdminRequired {
		t.Fatalf("expected ErrAdminRequired for member, got %v", err)
	}
	// Non-members get the opaque not-found answer, never ErrAdminRequired.
	if err := m.RequireAdmin("usr_c"); err != ErrNotFoundOrForbidden {
		t.Fatalf("expected ErrNotFoundOrForbidden for outsider, got %v", err)
	}
}

func TestCheckAddIsIdempotent(t *testing.T) {
	m := NewMembership("grp_1", "usr_a", []string{"usr_a", "usr_b"})
	if m.CheckAdd("usr_b") {
		t.Fatal("adding a present member must be a no-op")
	}
	if !m.CheckAdd("usr_c") {
		t.Fatal("adding an absent user must apply")
	}
}

func TestCheckRemove(t *testing.T) {
	m := NewMembership("grp_1", "usr_a", []string{"usr_a", "usr_b"})

	if _, err := m.CheckRemove("usr_a"); err != ErrCannotRemoveAdmin {
		t.Fatalf("expected ErrCannotRemoveAdmin, got %v", err)
	}

	changed, err := m.CheckRemove("usr_b")
	if err != nil || !changed {
		t.Fatalf("expected member removal to apply, changed=%v err=%v", changed, err)
	}

	changed, err = m.CheckRemove("usr_missing")
	if err != nil || changed {
		t.Fatalf("removing an absent member must be a no-op, changed=%v err=%v", changed, err)
	}
}

func TestEmptyAdminNeverMatches(t *testing.T) {
	m := NewMembership("grp_1", "", nil)
	if m.IsAdmin("") {
		t.Fatal("empty user id must never count as admin")
	}
}
