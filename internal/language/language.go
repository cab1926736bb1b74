// Package language is the catalogue of languages a participant can read
// the room in.
package language

import (
	_ "embed"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Default is the language used when none was chosen.
const Default = "en"

// UnknownFlag is shown for codes missing from the catalogue.
const UnknownFlag = "🏳️"

//go:embed languages.yaml
var catalogueYAML []byte

// Language is one catalogue entry.
type Language struct {
	Code string `yaml:"code"`
	Name string `yaml:"name"`
	Flag string `yaml:"flag"`
}

// String formats the language for pickers, e.g. "🇫🇷 French".
func (l Language) String() string {
	return l.Flag + " " + l.Name
}

type catalogue struct {
	Languages []Language `yaml:"languages"`
}

var (
	loadOnce sync.Once
	all      []Language
	byCode   map[string]Language
)

func load() {
	loadOnce.Do(func() {
		langs, err := Parse(catalogueYAML)
		if err != nil {
			panic(err)
		}
		all = langs
		byCode = make(map[string]Language, len(langs))
		for _, l := range langs {
			byCode[l.Code] = l
		}
	})
}

// Parse decodes a catalogue document.
func Parse(data []byte) ([]Language, error) {
	var c catalogue
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, errors.Wrap(err, "failed to parse language catalogue")
	}
	seen := make(map[string]bool, len(c.Languages))
	for i, l := range c.Languages {
		if l.Code == "" {
			return nil, errors.Errorf("language %d has no code", i)
		}
		if seen[l.Code] {
			return nil, errors.Errorf("duplicate language code %q", l.Code)
		}
		seen[l.Code] = true
	}
	return c.Languages, nil
}

// All returns the catalogue in display order.
func All() []Language {
	load()
	out := make([]Language, len(all))
	copy(out, all)
	return out
}

// Lookup returns the catalogue entry of code.
func Lookup(code string) (Language, bool) {
	load()
	l, ok := byCode[strings.ToLower(code)]
	return l, ok
}

// Flag returns the flag of code, or UnknownFlag.
func Flag(code string) string {
	if l, ok := Lookup(code); ok {
		return l.Flag
	}
	return UnknownFlag
}

// Initials returns up to two uppercase initials of name for avatars.
func Initials(name string) string {
	words := strings.FieldsFunc(name, unicode.IsSpace)
	if len(words) == 0 {
		return "?"
	}
	if len(words) > 2 {
		words = words[:2]
	}
	var b strings.Builder
	for _, w := range words {
		r, _ := utf8.DecodeRuneInString(w)
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}
