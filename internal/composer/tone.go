package composer

import (
	"fmt"
	"strings"
)

// Tone is the style label passed to the generator.
type Tone string

const (
	ToneProfessional Tone = "Profesional"
	ToneFun          Tone = "Lucu & Santai"
	TonePersuasive   Tone = "Persuasif (Jualan)"
	ToneLuxury       Tone = "Mewah & Elegan"
	ToneEducational  Tone = "Edukatif"
)

// DefaultTone is preselected on the generation screen.
const DefaultTone = ToneFun

// Tones lists every tone in display order.
var Tones = []Tone{ToneProfessional, ToneFun, TonePersuasive, ToneLuxury, ToneEducational}

var toneKeys = map[string]Tone{
	"professional": ToneProfessional,
	"fun":          ToneFun,
	"persuasive":   TonePersuasive,
	"luxury":       ToneLuxury,
	"educational":  ToneEducational,
}

// ParseTone accepts either the display label or its short key. An empty
// string yields DefaultTone.
func ParseTone(s string) (Tone, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return DefaultTone, nil
	}
	if t, ok := toneKeys[strings.ToLower(s)]; ok {
		return t, nil
	}
	for _, t := range Tones {
		if strings.EqualFold(string(t), s) {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown tone %q", s)
}

// Key returns the short key of a known tone, or the label itself.
func (t Tone) Key() string {
	for k, v := range toneKeys {
		if v == t {
			return k
		}
	}
	return string(t)
}
