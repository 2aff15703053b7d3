package fedAuth

import "testing"

func TestSessionEqual(t *testing.T) {
	a := Session{IsAuthenticated: true, User: &UserProfile{Name: "A", Roles: []string{"R1"}}}
	b := a.clone()
	if !a.equal(b) {
		t.Fatal("clone should be equal")
	}
	b.User.Roles[0] = "R2"
	if a.User.Roles[0] != "R1" {
		t.Fatal("clone must not alias roles")
	}
	if a.equal(b) {
		t.Fatal("different roles should not be equal")
	}
	if a.equal(Session{IsAuthenticated: true}) {
		t.Fatal("nil user should differ")
	}
	if !(Session{IsLoading: true}).equal(Session{IsLoading: true}) {
		t.Fatal("empty sessions should be equal")
	}
}

func TestOfferKeepsLatest(t *testing.T) {
	ch := make(chan Session, 1)
	offer(ch, Session{IsLoading: true})
	offer(ch, Session{IsAuthenticated: true, User: &UserProfile{Name: "A"}})

	got := <-ch
	if !got.IsAuthenticated || got.IsLoading {
		t.Fatalf("expected latest snapshot, got %+v", got)
	}
	select {
	case extra := <-ch:
		t.Fatalf("unexpected extra value %+v", extra)
	default:
	}
}

func TestProfileFromAccount(t *testing.T) {
	p := profileFromAccount(&Account{
		Username:      "u@example.com",
		TenantID:      "t1",
		IDTokenClaims: map[string]any{"roles": []any{"Admin"}},
	})
	if p.Name != "u@example.com" || p.Email != "u@example.com" || p.Username != "u@example.com" || p.TenantID != "t1" {
		t.Fatalf("unexpected profile: %+v", p)
	}
	if len(p.Roles) != 1 || p.Roles[0] != "Admin" {
		t.Fatalf("unexpected roles: %v", p.Roles)
	}
}
