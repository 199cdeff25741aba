package profanity

import (
	"embed"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"
)

var (
	defaultFilter *Filter
	defaultErr    error
	once          sync.Once

	separators = regexp.MustCompile(`[\s_.\-*/\\|]+`)
	pairs      = regexp.MustCompile(`(?i)(.)(.)`)

	leet = strings.NewReplacer(
		"@", "a", "4", "a",
		"3", "e", "€", "e",
		"1", "i", "!", "i", "|", "i", "¡", "i",
		"0", "o", "()", "o", "[]", "o",
		"$", "s", "5", "s", "z", "s",
		"7", "t", "+", "t",
		"ph", "f",
		"ck", "k", "kk", "k",
	)
)

//go:embed words.json
var wordsFS embed.FS

// Filter flags text containing a banned word or a common obfuscation of one.
type Filter struct {
	regex *regexp.Regexp
}

// Default returns the shared filter built from the embedded word list.
func Default() (*Filter, error) {
	once.Do(func() {
		words, err := loadBannedWords()
		if err != nil {
			defaultErr = err
			return
		}
		defaultFilter = New(words)
	})
	return defaultFilter, defaultErr
}

func New(words []string) *Filter {
	return &Filter{regex: buildMasterRegex(words)}
}

func loadBannedWords() ([]string, error) {
	data, err := wordsFS.ReadFile("words.json")
	if err != nil {
		return nil, fmt.Errorf("read banned words: %w", err)
	}

	var words []string
	if err := json.Unmarshal(data, &words); err != nil {
		return nil, fmt.Errorf("decode banned words: %w", err)
	}
	return words, nil
}

// Contains reports whether any of texts is profane.
func (f *Filter) Contains(texts ...string) bool {
	if f == nil || f.regex == nil {
		return false
	}
	for _, t := range texts {
		if t != "" && f.regex.MatchString(normalize(t)) {
			return true
		}
	}
	return false
}

func normalize(text string) string {
	s := strings.Map(func(r rune) rune {
		switch r {
		case 'á', 'à', 'â', 'ä', 'ã', 'å':
			return 'a'
		case 'é', 'è', 'ê', 'ë':
			return 'e'
		case 'í', 'ì', 'î', 'ï':
			return 'i'
		case 'ó', 'ò', 'ô', 'ö', 'õ':
			return 'o'
		case 'ú', 'ù', 'û', 'ü':
			return 'u'
		case 'ñ':
			return 'n'
		case 'ç':
			return 'c'
		}
		return r
	}, strings.ToLower(text))

	s = leet.Replace(s)
	return separators.ReplaceAllString(s, " ")
}

func buildMasterRegex(words []string) *regexp.Regexp {
	if len(words) == 0 {
		return nil
	}

	seen := make(map[string]struct{})
	patterns := make([]string, 0, len(words))
	for _, w := range words {
		// Input is normalized before matching, so the plain and doubled forms are enough.
		for _, variant := range doubledVariants(normalize(w)) {
			if _, ok := seen[variant]; ok {
				continue
			}
			seen[variant] = struct{}{}
			// f.u.c.k -> f[^\p{L}]*u[^\p{L}]*c[^\p{L}]*k
			patterns = append(patterns, pairs.ReplaceAllString(regexp.QuoteMeta(variant), `${1}[^\p{L}]*${2}`))
		}
	}

	return regexp.MustCompile(`(?:^|\W)(` + strings.Join(patterns, "|") + `)(?:$|\W)`)
}

// doubledVariants adds one repeated letter at each position: fuuck, shiit.
func doubledVariants(word string) []string {
	if word == "" {
		return nil
	}
	out := []string{word}
	if len(word) > 10 {
		return out
	}
	for i := 1; i < len(word); i++ {
		out = append(out, word[:i]+string(word[i-1])+word[i:])
	}
	return out
}
