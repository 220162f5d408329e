package model

import "testing"

func TestLookupDefault(t *testing.T) {
	c, ok := Lookup(DefaultID)
	if !ok {
		t.Fatalf("default model %s missing from catalog", DefaultID)
	}
	if c.MaxImages <= 0 {
		t.Errorf("default model should accept reference images, got %d", c.MaxImages)
	}
}

func TestLookupUnknown(t *testing.T) {
	if _, ok := Lookup("gpt-oss-120b"); ok {
		t.Error("unknown model should not resolve")
	}
}

func TestCatalogEntriesWellFormed(t *testing.T) {
	ids := IDs()
	if len(ids) == 0 {
		t.Fatal("catalog is empty")
	}
	for _, id := range ids {
		c, ok := Lookup(id)
		if !ok {
			t.Fatalf("IDs returned %s but Lookup missed", id)
		}
		if !c.Kind.Valid() {
			t.Errorf("%s: invalid kind %q", id, c.Kind)
		}
		if c.MaxImages < 0 {
			t.Errorf("%s: negative max_images %d", id, c.MaxImages)
		}
		if c.AspectRatio == "" || c.Resolution == "" {
			t.Errorf("%s: missing aspect ratio or resolution", id)
		}
	}
}

func TestIDsSorted(t *testing.T) {
	ids := IDs()
	for i := 1; i < len(ids); i++ {
		if ids[i-1] >= ids[i] {
			t.Fatalf("ids not sorted: %s >= %s", ids[i-1], ids[i])
		}
	}
}
