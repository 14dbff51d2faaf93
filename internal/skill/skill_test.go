package skill

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/kingrea/skilltree/internal/dom"
)

func parse(t *testing.T, markup string) *dom.Document {
	t.Helper()
	doc, err := dom.ParseString(markup)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return doc
}

func TestParseList(t *testing.T) {
	got := ParseList(" ac11, AC12.1 ,,ac21 ")
	want := []Code{"AC11", "AC12.1", "AC21"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("ParseList mismatch (-want +got):\n%s", diff)
	}
	if ParseList("") != nil {
		t.Fatalf("empty list should be nil")
	}
}

func TestFind(t *testing.T) {
	if c, ok := Find("node-ac12.3-chip"); !ok || c != "AC12.3" {
		t.Fatalf("Find = %q, %v", c, ok)
	}
	if _, ok := Find("GrandRond"); ok {
		t.Fatalf("unexpected code")
	}
}

func TestStoreKeyAndMentions(t *testing.T) {
	if !IsStoreKey("ac11") || !IsStoreKey("AC11_note") || IsStoreKey("parcours") {
		t.Fatalf("IsStoreKey misclassified")
	}
	if !Mentions("x ac11") || MentionsExact("x ac11") || !MentionsExact("AC11") {
		t.Fatalf("Mentions/MentionsExact misclassified")
	}
}

func TestExtractorOrder(t *testing.T) {
	doc := parse(t, `<svg>
  <g id="AC11" data-code="AC99"></g>
  <g id="n2" data-code="ac21"></g>
  <g id="n3"><title>Skill AC31.2</title></g>
  <g id="n4" data-name="Ventilateur"></g>
  <g id="n5"><g><title>AC41</title></g></g>
</svg>`)
	x := NewExtractor()
	cases := []struct {
		id       string
		code     Code
		strategy string
		ok       bool
	}{
		{"AC11", "AC11", "id", true},
		{"n2", "AC21", "dataset", true},
		{"n3", "AC31.2", "title", true},
		{"n4", "", "", false},
		{"n5", "", "", false},
	}
	for _, tc := range cases {
		code, strategy, ok := x.ExtractWith(doc.ByID(tc.id))
		if code != tc.code || strategy != tc.strategy || ok != tc.ok {
			t.Fatalf("%s: got (%q,%q,%v) want (%q,%q,%v)", tc.id, code, strategy, ok, tc.code, tc.strategy, tc.ok)
		}
	}
}

func TestDatasetListIsNotAtomic(t *testing.T) {
	doc := parse(t, `<svg><g id="c1" data-ac="AC11,AC12"></g><g id="c2" data-ac="AC13"></g></svg>`)
	x := NewExtractor()
	if _, ok := x.Extract(doc.ByID("c1")); ok {
		t.Fatalf("multi-code reference list must not resolve to a single code")
	}
	if c, ok := x.Extract(doc.ByID("c2")); !ok || c != "AC13" {
		t.Fatalf("single reference should resolve, got %q %v", c, ok)
	}
}

func TestClassify(t *testing.T) {
	doc := parse(t, `<svg>
  <g id="AC11"></g>
  <g id="cable" data-ac="AC11,AC12"></g>
  <g id="ram1" class="ram" data-acs="AC11,AC12"><rect class="ram-seg"/></g>
  <g id="fan1" class="fan" data-name="Développer"></g>
  <g id="fan2" data-fan=""></g>
  <g id="plain"></g>
</svg>`)
	x := NewExtractor()
	want := map[string]Kind{
		"AC11":  KindAtomic,
		"cable": KindBundle,
		"ram1":  KindSegment,
		"fan1":  KindAggregate,
		"fan2":  KindAggregate,
		"plain": KindNone,
	}
	for id, kind := range want {
		if got := Classify(doc.ByID(id), x); got != kind {
			t.Fatalf("Classify(%s) = %s, want %s", id, got, kind)
		}
	}
	if diff := cmp.Diff([]Code{"AC11", "AC12"}, References(doc.ByID("ram1"))); diff != "" {
		t.Fatalf("References mismatch:\n%s", diff)
	}
}
