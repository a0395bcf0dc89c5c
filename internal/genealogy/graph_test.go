package genealogy

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"pokeindex/internal/localize"
)

func ent(id int, key, parent string) Entity {
	return Entity{ID: id, Slug: key, Key: key, Parent: parent, Names: localize.Names{EN: key, JA: key, ZH: key}}
}

func slugs(stages []Stage) [][]string {
	out := make([][]string, 0, len(stages))
	for _, s := range stages {
		level := make([]string, 0, len(s))
		for _, n := range s {
			level = append(level, n.Slug)
		}
		out = append(out, level)
	}
	return out
}

func TestChainStagesBranchingFamily(t *testing.T) {
	entities := []Entity{
		ent(4, "d", "b"),
		ent(3, "c", "a"),
		ent(1, "a", ""),
		ent(2, "b", "a"),
	}
	g := NewGraph(entities)
	want := [][]string{{"a"}, {"b", "c"}, {"d"}}
	for _, key := range []string{"a", "b", "c", "d"} {
		if diff := cmp.Diff(want, slugs(g.Chain(key))); diff != "" {
			t.Fatalf("chain(%s) mismatch (-want +got):\n%s", key, diff)
		}
	}
}

func TestChainStageFollowsParentOrder(t *testing.T) {
	g := NewGraph([]Entity{
		ent(1, "a", ""),
		ent(2, "b", "a"),
		ent(3, "c", "a"),
		ent(10, "x", "b"),
		ent(5, "y", "c"),
	})
	want := [][]string{{"a"}, {"b", "c"}, {"x", "y"}}
	if diff := cmp.Diff(want, slugs(g.Chain("y"))); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}

func TestResolveEntitySlug(t *testing.T) {
	mega := Entity{ID: 10033, Slug: "venusaur-mega", Key: "venusaur", Parent: "ivysaur"}
	g := NewGraph([]Entity{ent(2, "ivysaur", ""), ent(3, "venusaur", "ivysaur"), mega})
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"venusaur", "venusaur", true},
		{"venusaur-mega", "venusaur", true},
		{"missingno", "", false},
	}
	for _, c := range cases {
		got, ok := g.Resolve(c.in)
		if got != c.want || ok != c.ok {
			t.Fatalf("Resolve(%q)=%q,%v want %q,%v", c.in, got, ok, c.want, c.ok)
		}
	}
}

func TestChainUnknownKeyIsEmpty(t *testing.T) {
	g := NewGraph([]Entity{ent(1, "a", "")})
	got := g.Chain("missingno")
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", got)
	}
}

func TestChainSingleRoot(t *testing.T) {
	g := NewGraph([]Entity{ent(132, "ditto", "")})
	if diff := cmp.Diff([][]string{{"ditto"}}, slugs(g.Chain("ditto"))); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}

func TestSiblingOrderIndependentOfInput(t *testing.T) {
	a := []Entity{ent(133, "eevee", ""), ent(136, "flareon", "eevee"), ent(134, "vaporeon", "eevee"), ent(135, "jolteon", "eevee")}
	b := []Entity{ent(135, "jolteon", "eevee"), ent(134, "vaporeon", "eevee"), ent(133, "eevee", ""), ent(136, "flareon", "eevee")}
	ca, cb := NewGraph(a).Chain("eevee"), NewGraph(b).Chain("eevee")
	if diff := cmp.Diff(ca, cb); diff != "" {
		t.Fatalf("order depends on input (-a +b):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"vaporeon", "jolteon", "flareon"}, slugs(ca)[1]); diff != "" {
		t.Fatalf("siblings not sorted by id (-want +got):\n%s", diff)
	}
}

func TestDanglingParentIsRoot(t *testing.T) {
	g := NewGraph([]Entity{ent(2, "ivysaur", "bulbasaur"), ent(3, "venusaur", "ivysaur")})
	if diff := cmp.Diff([][]string{{"ivysaur"}, {"venusaur"}}, slugs(g.Chain("venusaur"))); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}

func TestCycleTerminates(t *testing.T) {
	g := NewGraph([]Entity{ent(1, "a", "c"), ent(2, "b", "a"), ent(3, "c", "b")})
	root, ok := g.Root("a")
	if !ok {
		t.Fatalf("expected root")
	}
	stages := g.Chain("a")
	total := 0
	for _, s := range stages {
		total += len(s)
	}
	if total != 3 {
		t.Fatalf("expected every node exactly once, got %v (root %s)", slugs(stages), root)
	}
	if stages[0][0].Slug != root {
		t.Fatalf("first stage must be the resolved root")
	}
	self := NewGraph([]Entity{ent(1, "a", "a")})
	if diff := cmp.Diff([][]string{{"a"}}, slugs(self.Chain("a"))); diff != "" {
		t.Fatalf("self-parent mismatch (-want +got):\n%s", diff)
	}
}

func TestSharedKeyLowestIDWins(t *testing.T) {
	g := NewGraph([]Entity{
		{ID: 10033, Slug: "venusaur-mega", Key: "venusaur", Parent: "ivysaur"},
		{ID: 3, Slug: "venusaur", Key: "venusaur", Parent: "ivysaur"},
		{ID: 2, Slug: "ivysaur", Key: "ivysaur"},
	})
	stages := g.Chain("venusaur")
	if len(stages) != 2 || stages[1][0].ID != 3 {
		t.Fatalf("expected default form to represent the species, got %+v", stages)
	}
	if g.Len() != 2 {
		t.Fatalf("expected 2 indexed nodes, got %d", g.Len())
	}
}

func TestDisplayNameCached(t *testing.T) {
	g := NewGraph([]Entity{{ID: 1, Slug: "bulbasaur", Key: "bulbasaur", Names: localize.Names{EN: "Bulbasaur", ZH: "妙蛙种子"}}})
	if got := g.Chain("bulbasaur")[0][0].DisplayName; got != "妙蛙种子" {
		t.Fatalf("unexpected display name %q", got)
	}
}

func TestBuildChains(t *testing.T) {
	chains := BuildChains([]Entity{ent(1, "a", ""), ent(2, "b", "a"), ent(9, "z", "")})
	if len(chains) != 3 {
		t.Fatalf("expected a chain per key, got %d", len(chains))
	}
	if diff := cmp.Diff(slugs(chains["a"]), slugs(chains["b"])); diff != "" {
		t.Fatalf("family members should share a chain (-a +b):\n%s", diff)
	}
	if NewGraph(nil).Has("a") {
		t.Fatalf("empty graph should not index anything")
	}
}
