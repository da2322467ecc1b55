package normalization

import "testing"

func TestNormalizeName(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{"lowercase", "Thyagaraja", "thyagaraja"},
		{"trim_and_collapse", "  Muthuswami   Dikshitar  ", "muthuswami dikshitar"},
		{"strip_punctuation", "Shyama Shastri.", "shyama shastri"},
		{"long_vowel_collapse", "Kaamboji", "kamboji"},
		{"hyphen_to_space", "vara-veena", "vara vena"},
		{"empty", "   ", ""},
		{"double_ee", "shree", "shre"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := NormalizeName(tc.input); got != tc.want {
				t.Fatalf("NormalizeName(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}

func TestNormalizeNameIsIdempotent(t *testing.T) {
	for _, input := range []string{"Thyagaraja", "Kaamboji", "vara-veena mridu-paani"} {
		once := NormalizeName(input)
		if twice := NormalizeName(once); twice != once {
			t.Fatalf("NormalizeName not idempotent for %q: %q -> %q", input, once, twice)
		}
	}
}

func TestSimilarity(t *testing.T) {
	if got := Similarity("Thyagaraja", "thyagaraja"); got != 1 {
		t.Fatalf("identical after normalization: got %v, want 1", got)
	}
	if got := Similarity("", ""); got != 0 {
		t.Fatalf("both empty: got %v, want 0", got)
	}
	close := Similarity("nagumomu", "nagumoomu")
	if close < 0.8 {
		t.Fatalf("near-identical titles scored %v", close)
	}
	far := Similarity("nagumomu", "endaro mahanubhavulu")
	if far >= close {
		t.Fatalf("unrelated titles (%v) scored >= near-identical (%v)", far, close)
	}
}

func TestParseInputString(t *testing.T) {
	if got := ParseInputString("  MiXeD Case  "); got != "mixed case" {
		t.Fatalf("got %q", got)
	}
	if ParseInputStringPtr(nil) != nil {
		t.Fatal("nil pointer should stay nil")
	}
}
