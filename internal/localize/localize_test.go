package localize

import "testing"

func TestResolveNamesFallsBackToEnglish(t *testing.T) {
	got := ResolveNames("bulbasaur", []Entry{{Language: "en", Value: "Bulbasaur"}})
	want := Names{EN: "Bulbasaur", JA: "Bulbasaur", ZH: "Bulbasaur"}
	if got != want {
		t.Fatalf("got %+v want %+v", got, want)
	}

	got = ResolveNames("bulbasaur", []Entry{
		{Language: "en", Value: "Bulbasaur"},
		{Language: "zh-Hans", Value: "妙蛙种子"},
	})
	if got.ZH != "妙蛙种子" {
		t.Fatalf("expected zh-hans name, got %q", got.ZH)
	}
	if got.JA != "Bulbasaur" {
		t.Fatalf("expected ja to stay english, got %q", got.JA)
	}
}

func TestResolveNamesUsesSlugWithoutEnglish(t *testing.T) {
	got := ResolveNames("mr-mime", nil)
	if got.EN != "mr-mime" || got.JA != "mr-mime" || got.ZH != "mr-mime" {
		t.Fatalf("expected slug everywhere, got %+v", got)
	}
}

func TestResolveNamesPreferenceOrder(t *testing.T) {
	got := ResolveNames("pikachu", []Entry{
		{Language: "ja-Hrkt", Value: "ピカチュウ(kana)"},
		{Language: "ja", Value: "ピカチュウ"},
		{Language: "zh-Hant", Value: "皮卡丘(繁)"},
		{Language: "en", Value: "Pikachu"},
	})
	if got.JA != "ピカチュウ" {
		t.Fatalf("expected ja over ja-hrkt, got %q", got.JA)
	}
	if got.ZH != "皮卡丘(繁)" {
		t.Fatalf("expected zh-hant fallback, got %q", got.ZH)
	}
}

func TestDisplayName(t *testing.T) {
	if got := DisplayName(Names{EN: "Eevee", ZH: "伊布"}); got != "伊布" {
		t.Fatalf("expected zh, got %q", got)
	}
	if got := DisplayName(Names{EN: "Eevee"}); got != "Eevee" {
		t.Fatalf("expected en, got %q", got)
	}
}

func TestDescription(t *testing.T) {
	entries := []Entry{
		{Language: "fr", Value: "Une graine"},
		{Language: "en", Value: "A strange seed\nwas planted\fon its back."},
		{Language: "en", Value: "second english entry"},
	}
	if got := Description(entries); got != "A strange seed was planted on its back." {
		t.Fatalf("unexpected description %q", got)
	}
	entries = append(entries, Entry{Language: "zh-Hans", Value: "背上\n有种子"})
	if got := Description(entries); got != "背上 有种子" {
		t.Fatalf("expected zh-hans text, got %q", got)
	}
	if got := Description([]Entry{{Language: "fr", Value: "Une graine"}}); got != "Une graine" {
		t.Fatalf("expected first entry fallback, got %q", got)
	}
	if got := Description(nil); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
}
