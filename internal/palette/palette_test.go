package palette

import "testing"

func TestClassify(t *testing.T) {
	cases := map[string]string{
		"Comprendre les écosystèmes":     "#ff77d1",
		"CONCEVOIR une réponse":          "#ffd700",
		"Exprimer un message":            "#8a2be2",
		"Développer pour le web":         "#00ff41",
		"Developper sans accents":        "#00ff41",
		"Entreprendre dans le numérique": "#06D1FF",
	}
	for label, want := range cases {
		got, ok := Color(label)
		if !ok || got != want {
			t.Fatalf("Color(%q) = %q, %v; want %q", label, got, ok, want)
		}
	}
	if _, ok := Color("Gérer un projet"); ok {
		t.Fatalf("unexpected category for unrelated label")
	}
	if _, ok := Color(""); ok {
		t.Fatalf("empty label must not classify")
	}
}

func TestFold(t *testing.T) {
	if got := Fold("Ventilateur Développer"); got != "ventilateur developper" {
		t.Fatalf("Fold = %q", got)
	}
}

func TestSameColor(t *testing.T) {
	if !SameColor("#06D1FF", " #06d1ff") {
		t.Fatalf("expected case-insensitive color match")
	}
}
