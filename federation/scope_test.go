package federation

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
)

type idp struct{ name string }

func TestProvideAndResolve(t *testing.T) {
	s := NewScope(nil)
	shared := &idp{name: "entra"}
	if err := s.Provide("msal", "3.2.0", shared); err != nil {
		t.Fatalf("provide: %v", err)
	}

	got, err := Resolve[*idp](s, "msal", Requirement{RequiredVersion: "^3.0.0", StrictVersion: true})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got != shared {
		t.Fatal("expected the shared instance")
	}
	if v, ok := s.Version("msal"); !ok || v != "3.2.0" {
		t.Fatalf("unexpected version %q %v", v, ok)
	}
}

func TestProvideRejectsDuplicate(t *testing.T) {
	s := NewScope(nil)
	if err := s.Provide("msal", "3.0.0", &idp{}); err != nil {
		t.Fatalf("provide: %v", err)
	}
	if err := s.Provide("msal", "3.1.0", &idp{}); !errors.Is(err, ErrAlreadyShared) {
		t.Fatalf("expected ErrAlreadyShared, got %v", err)
	}
}

func TestProvideRejectsBadVersion(t *testing.T) {
	s := NewScope(nil)
	if err := s.Provide("msal", "three", &idp{}); !errors.Is(err, ErrInvalidVersion) {
		t.Fatalf("expected ErrInvalidVersion, got %v", err)
	}
}

func TestResolveMissing(t *testing.T) {
	_, err := Resolve[*idp](NewScope(nil), "msal", Requirement{})
	if !errors.Is(err, ErrNotShared) {
		t.Fatalf("expected ErrNotShared, got %v", err)
	}
}

func TestResolveVersionMismatchStrict(t *testing.T) {
	s := NewScope(nil)
	_ = s.Provide("msal", "2.9.0", &idp{})
	_, err := Resolve[*idp](s, "msal", Requirement{RequiredVersion: "^3.0.0", StrictVersion: true})
	if !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected ErrVersionMismatch, got %v", err)
	}
}

func TestResolveVersionMismatchLenientWarns(t *testing.T) {
	var buf bytes.Buffer
	s := NewScope(slog.New(slog.NewTextHandler(&buf, nil)))
	shared := &idp{}
	_ = s.Provide("msal", "2.9.0", shared)

	got, err := Resolve[*idp](s, "msal", Requirement{RequiredVersion: "^3.0.0"})
	if err != nil {
		t.Fatalf("lenient resolve: %v", err)
	}
	if got != shared {
		t.Fatal("expected the shared instance despite the mismatch")
	}
	if !strings.Contains(buf.String(), "does not satisfy") {
		t.Fatalf("expected a warning, got %q", buf.String())
	}
}

func TestResolveTypeMismatch(t *testing.T) {
	s := NewScope(nil)
	_ = s.Provide("msal", "3.0.0", "not a provider")
	_, err := Resolve[*idp](s, "msal", Requirement{})
	if !errors.Is(err, ErrTypeMismatch) {
		t.Fatalf("expected ErrTypeMismatch, got %v", err)
	}
}

func TestShareCreatesOnce(t *testing.T) {
	s := NewScope(nil)
	var created int
	var mu sync.Mutex
	create := func() (*idp, error) {
		mu.Lock()
		defer mu.Unlock()
		created++
		return &idp{}, nil
	}

	var wg sync.WaitGroup
	results := make([]*idp, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			inst, err := Share(s, "msal", "3.0.0", Requirement{RequiredVersion: "^3.0.0"}, create)
			if err != nil {
				t.Errorf("share: %v", err)
				return
			}
			results[i] = inst
		}(i)
	}
	wg.Wait()

	if created != 1 {
		t.Fatalf("expected one construction, got %d", created)
	}
	for _, r := range results {
		if r != results[0] {
			t.Fatal("expected every caller to get the same instance")
		}
	}
	if names := s.Names(); len(names) != 1 || names[0] != "msal" {
		t.Fatalf("unexpected names %v", names)
	}
}

func TestSharePropagatesCreateError(t *testing.T) {
	s := NewScope(nil)
	boom := errors.New("boom")
	_, err := Share(s, "msal", "3.0.0", Requirement{}, func() (*idp, error) { return nil, boom })
	if !errors.Is(err, boom) {
		t.Fatalf("expected create error, got %v", err)
	}
	if len(s.Names()) != 0 {
		t.Fatal("failed creation must not register an instance")
	}
}
