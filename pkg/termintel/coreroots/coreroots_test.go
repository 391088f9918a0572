package coreroots

import (
	"reflect"
	"testing"

	"github.com/cognicore/termintel/pkg/termintel/ingest"
)

func TestBuild(t *testing.T) {
	tok := ingest.NewDefaultTokenizer()
	set := Build([]string{"Wireless Earbuds", "earbuds for running", ""}, tok)

	want := []string{"earbuds", "running", "wireless"}
	if got := set.Sorted(); !reflect.DeepEqual(got, want) {
		t.Errorf("Build = %v, want %v", got, want)
	}
	if set.Contains("for") {
		t.Error("stopwords must not become core roots")
	}
}

func TestBuildEmpty(t *testing.T) {
	set := Build(nil, ingest.NewDefaultTokenizer())
	if len(set) != 0 {
		t.Errorf("expected empty set, got %v", set.Sorted())
	}
	var nilSet Set
	if nilSet.Contains("anything") || nilSet.ContainsAny([]string{"a", "b"}) {
		t.Error("nil set contains nothing")
	}
}

func TestSetOperations(t *testing.T) {
	a := Of("alpha", "beta")
	b := Of("beta", "gamma")

	if got := a.Union(b).Sorted(); !reflect.DeepEqual(got, []string{"alpha", "beta", "gamma"}) {
		t.Errorf("Union = %v", got)
	}
	if got := a.Minus(b).Sorted(); !reflect.DeepEqual(got, []string{"alpha"}) {
		t.Errorf("Minus = %v", got)
	}
	if !a.ContainsAny([]string{"zeta", "beta"}) {
		t.Error("ContainsAny should find beta")
	}
	if a.ContainsAny([]string{"zeta"}) {
		t.Error("ContainsAny should not find zeta")
	}
	if len(a) != 2 || len(b) != 2 {
		t.Error("operations must not mutate their inputs")
	}
}
