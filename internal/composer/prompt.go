// Package composer assembles the instruction document sent to the caption
// generator.
package composer

import (
	"fmt"
	"strings"
)

// LinkPlaceholder replaces an empty product link.
const LinkPlaceholder = "(Link ada di bio)"

const (
	personaRule   = "============================================================="
	personaHeader = "[KARAKTER & ATURAN MUTLAK APLIKASI (UTAMA)]"
	personaLead   = "Anda WAJIB mematuhi instruksi berikut di atas segalanya:"
	personaWins   = "(JIKA ada instruksi lain yang bertentangan dengan aturan di atas, MENANGKAN aturan di atas.)"

	roleLine = "Bertindaklah sebagai Copywriter Profesional."
	taskLine = "Tugas: Buatkan caption viral untuk Instagram/TikTok."

	productHeader  = "DATA PRODUK:"
	strategyHeader = "GUNAKAN STRATEGI KHUSUS:"
	customHeader   = "INSTRUKSI TAMBAHAN DARI USER:"
	guideHeader    = "PANDUAN PENULISAN UMUM (Kecuali dilarang di Aturan Mutlak):"
	formatHeader   = "FORMAT OUTPUT (JSON ONLY):"
)

const formatBody = `{
  "caption": "Teks caption lengkap...",
  "hashtags": ["#tag1", "#tag2", ...]
}`

// Product is the catalog data echoed into the prompt.
type Product struct {
	StoreName   string
	ProductName string
	Link        string
	Description string
}

// Strategy is a writing pattern for the model to imitate.
type Strategy struct {
	Title   string
	Hook    string
	Example string
}

// Input holds every source the composer merges. Strategy, CustomInstruction
// and BrainInstruction are optional.
type Input struct {
	Product           Product
	Tone              Tone
	Strategy          *Strategy
	CustomInstruction string
	BrainInstruction  string
}

// Compose builds the prompt. Sections appear in a fixed order:
// persona, task, product, strategy, custom instruction, general guidance,
// output format. Free text is embedded verbatim.
func Compose(in Input) string {
	var sections []string

	if strings.TrimSpace(in.BrainInstruction) != "" {
		sections = append(sections, personaBlock(in.BrainInstruction))
	}
	sections = append(sections, roleLine+"\n"+taskLine)
	sections = append(sections, productBlock(in.Product, in.Tone))
	if in.Strategy != nil {
		sections = append(sections, strategyBlock(*in.Strategy))
	}
	if strings.TrimSpace(in.CustomInstruction) != "" {
		sections = append(sections, fmt.Sprintf("%s\n\"%s\"", customHeader, in.CustomInstruction))
	}
	sections = append(sections, guidanceBlock(in.Product.StoreName))
	sections = append(sections, formatHeader+"\n"+formatBody)

	return strings.Join(sections, "\n\n") + "\n"
}

func personaBlock(instruction string) string {
	var sb strings.Builder
	sb.WriteString(personaRule + "\n")
	sb.WriteString(personaHeader + "\n")
	sb.WriteString(personaLead + "\n\n")
	sb.WriteString(instruction)
	sb.WriteString("\n\n" + personaWins + "\n")
	sb.WriteString(personaRule)
	return sb.String()
}

func productBlock(p Product, tone Tone) string {
	link := p.Link
	if strings.TrimSpace(link) == "" {
		link = LinkPlaceholder
	}

	var sb strings.Builder
	sb.WriteString(productHeader + "\n")
	fmt.Fprintf(&sb, "- Nama Toko: %s\n", p.StoreName)
	fmt.Fprintf(&sb, "- Nama Produk: %s\n", p.ProductName)
	fmt.Fprintf(&sb, "- Link Produk: %s\n", link)
	fmt.Fprintf(&sb, "- Deskripsi Produk: %s\n", p.Description)
	fmt.Fprintf(&sb, "- Gaya Bahasa (Tone): %s", tone)
	return sb.String()
}

func strategyBlock(s Strategy) string {
	return fmt.Sprintf("%s\nJenis Hook/Pancingan: %s\nContoh Gaya Penulisan (Tiru pola kalimatnya): \"%s\"",
		strategyHeader, s.Hook, s.Example)
}

func guidanceBlock(storeName string) string {
	return fmt.Sprintf("%s\n1. Sebutkan nama toko \"%s\" untuk branding.\n2. Gunakan emoji yang relevan.\n3. Akhiri dengan Call to Action (CTA).",
		guideHeader, storeName)
}

// EstimateTokens provides a rough token count using 4 chars per token heuristic.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}
