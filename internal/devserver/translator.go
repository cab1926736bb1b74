package devserver

import (
	"os"
	"unicode/utf8"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Translator detects and translates chat text.
type Translator interface {
	Detect(text string) string
	Translate(text, from, to string) string
}

// Identity detects every text as Lang and never rewrites it.
type Identity struct {
	Lang string
}

func (i Identity) Detect(string) string {
	if i.Lang == "" {
		return "en"
	}
	return i.Lang
}

func (Identity) Translate(text, _, _ string) string {
	return text
}

// Phrase is a known sentence and its translations keyed by language.
type Phrase struct {
	Lang         string            `yaml:"lang"`
	Text         string            `yaml:"text"`
	Translations map[string]string `yaml:"translations"`
}

// Glossary translates known phrases. Unknown text is detected as
// Default and left unchanged.
type Glossary struct {
	Default string   `yaml:"default"`
	Phrases []Phrase `yaml:"phrases"`
}

// LoadGlossary reads a Glossary from a YAML file.
func LoadGlossary(path string) (*Glossary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read glossary")
	}
	var g Glossary
	if err := yaml.Unmarshal(data, &g); err != nil {
		return nil, errors.Wrapf(err, "failed to parse glossary %s", path)
	}
	return &g, nil
}

func (g *Glossary) find(text string) (Phrase, bool) {
	for _, p := range g.Phrases {
		if p.Text == text {
			return p, true
		}
		for _, t := range p.Translations {
			if t == text {
				return p, true
			}
		}
	}
	return Phrase{}, false
}

func (g *Glossary) Detect(text string) string {
	if p, ok := g.find(text); ok {
		if p.Text == text {
			return p.Lang
		}
		for lang, t := range p.Translations {
			if t == text {
				return lang
			}
		}
	}
	return Identity{Lang: g.Default}.Detect(text)
}

func (g *Glossary) Translate(text, _, to string) string {
	p, ok := g.find(text)
	if !ok {
		return text
	}
	if to == p.Lang {
		return p.Text
	}
	if t, ok := p.Translations[to]; ok {
		return t
	}
	return text
}

// Speech turns recordings into text and back.
type Speech interface {
	Transcribe(audio []byte, lang string) (string, error)
	Synthesize(text, lang string) ([]byte, error)
}

// TextSpeech treats recordings as UTF-8 text. It lets the voice paths
// run without a speech engine.
type TextSpeech struct{}

func (TextSpeech) Transcribe(audio []byte, _ string) (string, error) {
	if !utf8.Valid(audio) {
		return "", errors.New("recording is not text")
	}
	return string(audio), nil
}

func (TextSpeech) Synthesize(text, _ string) ([]byte, error) {
	return []byte(text), nil
}
