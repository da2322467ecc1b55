package jobs

import (
	"testing"
)

type fakeHandler struct {
	jobType string
}

func (h *fakeHandler) Type() string          { return h.jobType }
func (h *fakeHandler) Run(jc *Context) error { return nil }

func TestRegistryRegistrationOrder(t *testing.T) {
	reg := NewRegistry()
	for _, jobType := range []string{"extract", "catalog-write", "dedupe-pass"} {
		if err := reg.Register(&fakeHandler{jobType: jobType}); err != nil {
			t.Fatalf("Register %q: %v", jobType, err)
		}
	}

	got := reg.Types()
	want := []string{"extract", "catalog-write", "dedupe-pass"}
	if len(got) != len(want) {
		t.Fatalf("Types = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Types = %v, want %v", got, want)
		}
	}

	handler, ok := reg.Get("catalog-write")
	if !ok || handler.Type() != "catalog-write" {
		t.Fatalf("Get = %v, %v", handler, ok)
	}
	if _, ok := reg.Get("unknown"); ok {
		t.Fatal("unknown type resolved")
	}
}

func TestRegistryRejectsDuplicatesAndNil(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(nil); err == nil {
		t.Fatal("nil handler accepted")
	}
	if err := reg.Register(&fakeHandler{}); err == nil {
		t.Fatal("empty type accepted")
	}
	if err := reg.Register(&fakeHandler{jobType: "extract"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := reg.Register(&fakeHandler{jobType: "extract"}); err == nil {
		t.Fatal("duplicate type accepted")
	}
}
