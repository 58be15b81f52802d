package composer

import (
	"strings"
	"testing"
)

func baseInput() Input {
	return Input{
		Product: Product{
			StoreName:   "Toko A",
			ProductName: "Widget",
			Description: "desc",
		},
		Tone: ToneFun,
	}
}

func TestCompose_MinimalInput(t *testing.T) {
	out := Compose(baseInput())

	for _, want := range []string{
		roleLine,
		taskLine,
		"- Nama Toko: Toko A",
		"- Nama Produk: Widget",
		"- Deskripsi Produk: desc",
		"- Gaya Bahasa (Tone): Lucu & Santai",
		formatHeader,
		`"caption"`,
		`"hashtags"`,
		guideHeader,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("prompt missing %q:\n%s", want, out)
		}
	}

	for _, absent := range []string{personaHeader, personaWins, strategyHeader, customHeader} {
		if strings.Contains(out, absent) {
			t.Errorf("prompt unexpectedly contains %q", absent)
		}
	}
}

func TestCompose_LinkPlaceholder(t *testing.T) {
	out := Compose(baseInput())
	if !strings.Contains(out, "- Link Produk: "+LinkPlaceholder) {
		t.Errorf("expected link placeholder, got:\n%s", out)
	}

	in := baseInput()
	in.Product.Link = "https://shop.example/widget"
	out = Compose(in)
	if !strings.Contains(out, "- Link Produk: https://shop.example/widget") {
		t.Errorf("expected real link, got:\n%s", out)
	}
	if strings.Contains(out, LinkPlaceholder) {
		t.Error("placeholder present although link is set")
	}
}

func TestCompose_PersonaFirstWithOverride(t *testing.T) {
	in := baseInput()
	in.BrainInstruction = "Selalu pakai bahasa Jawa. Jangan pernah pakai emoji."
	out := Compose(in)

	persona := strings.Index(out, personaHeader)
	task := strings.Index(out, roleLine)
	if persona < 0 {
		t.Fatalf("persona block missing:\n%s", out)
	}
	if persona > task {
		t.Errorf("persona block (at %d) must precede task framing (at %d)", persona, task)
	}
	if !strings.Contains(out, personaWins) {
		t.Error("override directive missing")
	}
	if !strings.Contains(out, in.BrainInstruction) {
		t.Error("brain instruction not embedded verbatim")
	}
}

func TestCompose_SectionOrder(t *testing.T) {
	in := baseInput()
	in.BrainInstruction = "persona"
	in.Strategy = &Strategy{Title: "PAS", Hook: "Problem-Agitate-Solve", Example: "Capek begadang?"}
	in.CustomInstruction = "Maksimal 3 kalimat."
	out := Compose(in)

	order := []string{personaHeader, roleLine, productHeader, strategyHeader, customHeader, guideHeader, formatHeader}
	last := -1
	for _, marker := range order {
		idx := strings.Index(out, marker)
		if idx < 0 {
			t.Fatalf("missing section %q", marker)
		}
		if idx <= last {
			t.Errorf("section %q out of order", marker)
		}
		last = idx
	}
}

func TestCompose_StrategyBlock(t *testing.T) {
	in := baseInput()
	in.Strategy = &Strategy{Title: "PAS", Hook: "Pertanyaan retoris", Example: "Pernah nggak sih..."}
	out := Compose(in)

	if !strings.Contains(out, "Jenis Hook/Pancingan: Pertanyaan retoris") {
		t.Errorf("hook missing:\n%s", out)
	}
	if !strings.Contains(out, `Contoh Gaya Penulisan (Tiru pola kalimatnya): "Pernah nggak sih..."`) {
		t.Errorf("example missing:\n%s", out)
	}
}

func TestCompose_CustomInstructionVerbatim(t *testing.T) {
	in := baseInput()
	in.CustomInstruction = "Sebut \"promo\"\nbaris dua"
	out := Compose(in)

	if !strings.Contains(out, customHeader+"\n\"Sebut \"promo\"\nbaris dua\"") {
		t.Errorf("custom instruction not embedded verbatim:\n%s", out)
	}
}

func TestCompose_BlankOptionalSourcesOmitted(t *testing.T) {
	in := baseInput()
	in.CustomInstruction = "   "
	in.BrainInstruction = "\n\t"
	out := Compose(in)

	if strings.Contains(out, customHeader) || strings.Contains(out, personaHeader) {
		t.Errorf("whitespace-only sources should be omitted:\n%s", out)
	}
}

func TestCompose_GuidanceMentionsStore(t *testing.T) {
	out := Compose(baseInput())
	if !strings.Contains(out, `Sebutkan nama toko "Toko A" untuk branding.`) {
		t.Errorf("guidance missing store name:\n%s", out)
	}
}

func TestParseTone(t *testing.T) {
	tests := []struct {
		in   string
		want Tone
		err  bool
	}{
		{"", DefaultTone, false},
		{"fun", ToneFun, false},
		{"Luxury", ToneLuxury, false},
		{"Persuasif (Jualan)", TonePersuasive, false},
		{"edukatif", ToneEducational, false},
		{"sarcastic", "", true},
	}
	for _, tt := range tests {
		got, err := ParseTone(tt.in)
		if (err != nil) != tt.err {
			t.Errorf("ParseTone(%q) err = %v, want err %v", tt.in, err, tt.err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseTone(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestToneKey(t *testing.T) {
	if ToneProfessional.Key() != "professional" {
		t.Errorf("Key() = %q", ToneProfessional.Key())
	}
	if Tone("custom").Key() != "custom" {
		t.Errorf("unknown tone key = %q", Tone("custom").Key())
	}
}

func TestEstimateTokens(t *testing.T) {
	if EstimateTokens("") != 0 {
		t.Error("empty text should be 0 tokens")
	}
	if EstimateTokens("abcd") != 1 || EstimateTokens("abcde") != 2 {
		t.Error("unexpected estimate")
	}
}
