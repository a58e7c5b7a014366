package core

import (
	"reflect"
	"testing"

	"assetcore/pkg/domain"
)

func locationsFixture() []domain.Location {
	return []domain.Location{
		{Name: "HQ", Parent: domain.RootLocation},
		{Name: "Lab", Parent: "HQ"},
		{Name: "Bench-1", Parent: "Lab"},
		{Name: "Annex", Parent: domain.RootLocation},
		{Name: "Storage", Parent: "Annex"},
	}
}

func TestLocationIndexDescendantsClosure(t *testing.T) {
	idx := NewLocationIndex(locationsFixture())

	got := idx.Descendants("HQ")
	want := []string{"Bench-1", "HQ", "Lab"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("descendants of HQ = %v, want %v", got, want)
	}

	if got := idx.Descendants("Bench-1"); !reflect.DeepEqual(got, []string{"Bench-1"}) {
		t.Fatalf("leaf descendants = %v, want just the leaf", got)
	}
}

func TestLocationIndexUnknownNameIsSingleton(t *testing.T) {
	idx := NewLocationIndex(locationsFixture())
	got := idx.Descendants("Ghost Office")
	if !reflect.DeepEqual(got, []string{"Ghost Office"}) {
		t.Fatalf("unknown name = %v, want singleton", got)
	}
	if idx.Known("Ghost Office") {
		t.Fatal("unknown name reported as known")
	}
}

func TestLocationIndexCycleDoesNotLoop(t *testing.T) {
	cyclic := []domain.Location{
		{Name: "A", Parent: "B"},
		{Name: "B", Parent: "A"},
	}
	idx := NewLocationIndex(cyclic)

	// Both nodes reference each other; traversal must terminate and the
	// closure must not repeat members.
	got := idx.Descendants("A")
	seen := make(map[string]int)
	for _, name := range got {
		seen[name]++
		if seen[name] > 1 {
			t.Fatalf("descendant %q visited twice: %v", name, got)
		}
	}
	if seen["A"] == 0 {
		t.Fatalf("closure %v missing the start node", got)
	}
}

func TestLocationIndexOrphanParentReattachesToRoot(t *testing.T) {
	idx := NewLocationIndex([]domain.Location{
		{Name: "Adrift", Parent: "Nowhere"},
		{Name: "HQ", Parent: domain.RootLocation},
	})
	top := idx.TopLevel()
	found := false
	for _, name := range top {
		if name == "Adrift" {
			found = true
		}
	}
	if !found {
		t.Fatalf("top level = %v, expected orphan to surface there", top)
	}
}

func TestLocationIndexSkipsRootAndEmptyNames(t *testing.T) {
	idx := NewLocationIndex([]domain.Location{
		{Name: "", Parent: domain.RootLocation},
		{Name: domain.RootLocation, Parent: domain.RootLocation},
		{Name: "HQ", Parent: domain.RootLocation},
	})
	if idx.Known(domain.RootLocation) {
		t.Fatal("root sentinel must not be indexed as an office")
	}
	if !idx.Known("HQ") {
		t.Fatal("HQ should be indexed")
	}
}
