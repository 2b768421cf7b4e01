package exports

import "testing"

func TestList_AddAndLookup(t *testing.T) {
	l := NewList()
	if err := l.Add(&Export{Name: "disk0"}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	e, ok := l.Lookup("disk0")
	if !ok || e.Name != "disk0" {
		t.Fatalf("Lookup(disk0) = %v, %v", e, ok)
	}
	if _, ok := l.Lookup("missing"); ok {
		t.Error("Lookup(missing) should not be found")
	}
}

func TestList_DuplicateNameRejected(t *testing.T) {
	l := NewList()
	if err := l.Add(&Export{Name: "disk0"}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := l.Add(&Export{Name: "disk0"}); err == nil {
		t.Error("Add of duplicate name should fail")
	}
}

func TestList_UseDefaultResolvesEmptyNameToFirst(t *testing.T) {
	l := NewList()
	if err := l.Add(&Export{Name: "disk0"}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if _, ok := l.Lookup(""); ok {
		t.Error("empty-name lookup should fail before SetUseDefault")
	}
	l.SetUseDefault(true)
	e, ok := l.Lookup("")
	if !ok || e.Name != "disk0" {
		t.Fatalf("Lookup(\"\") with use_default = %v, %v, want disk0", e, ok)
	}
	if !l.UsesDefault() {
		t.Error("UsesDefault() should report true after SetUseDefault(true)")
	}
}

func TestList_AllPreservesRegistrationOrder(t *testing.T) {
	l := NewList()
	names := []string{"c", "a", "b"}
	for _, n := range names {
		if err := l.Add(&Export{Name: n}); err != nil {
			t.Fatalf("Add(%s) failed: %v", n, err)
		}
	}
	all := l.All()
	if len(all) != len(names) {
		t.Fatalf("All() returned %d entries, want %d", len(all), len(names))
	}
	for i, n := range names {
		if all[i].Name != n {
			t.Errorf("All()[%d] = %q, want %q", i, all[i].Name, n)
		}
	}
	if l.Len() != len(names) {
		t.Errorf("Len() = %d, want %d", l.Len(), len(names))
	}
}
