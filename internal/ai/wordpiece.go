package ai

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	tokenCLS = "[CLS]"
	tokenSEP = "[SEP]"
	tokenUNK = "[UNK]"

	maxWordChars = 100
)

// WordPiece is an uncased BERT tokenizer backed by a vocab.txt file.
type WordPiece struct {
	vocab map[string]int64
}

func LoadWordPiece(path string) (*WordPiece, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open vocab failed: %w", err)
	}
	defer f.Close()
	return ReadWordPiece(f)
}

// ReadWordPiece reads one token per line; the line number is the token id.
func ReadWordPiece(r io.Reader) (*WordPiece, error) {
	vocab := make(map[string]int64)
	sc := bufio.NewScanner(r)
	var id int64
	for sc.Scan() {
		vocab[strings.TrimRight(sc.Text(), "\r")] = id
		id++
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read vocab failed: %w", err)
	}
	for _, special := range []string{tokenCLS, tokenSEP, tokenUNK} {
		if _, ok := vocab[special]; !ok {
			return nil, fmt.Errorf("vocab is missing %s", special)
		}
	}
	return &WordPiece{vocab: vocab}, nil
}

// Encode returns token ids wrapped in [CLS] ... [SEP], truncated to maxLen.
func (w *WordPiece) Encode(text string, maxLen int) []int64 {
	ids := []int64{w.vocab[tokenCLS]}
	budget := maxLen - 2
	for _, word := range w.basicTokens(text) {
		for _, piece := range w.pieces(word) {
			if len(ids)-1 >= budget {
				return append(ids, w.vocab[tokenSEP])
			}
			ids = append(ids, piece)
		}
	}
	return append(ids, w.vocab[tokenSEP])
}

// basicTokens lower-cases, strips accents and splits on whitespace and punctuation.
func (w *WordPiece) basicTokens(text string) []string {
	// Casers and transformers are stateful, so build them per call.
	stripAccents := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	normalized, _, err := transform.String(stripAccents, cases.Lower(language.Und).String(text))
	if err != nil {
		normalized = strings.ToLower(text)
	}

	var (
		tokens  []string
		current strings.Builder
	)
	flush := func() {
		if current.Len() > 0 {
			tokens = append(tokens, current.String())
			current.Reset()
		}
	}
	for _, r := range normalized {
		switch {
		case r == 0 || r == unicode.ReplacementChar || (unicode.IsControl(r) && !unicode.IsSpace(r)):
			continue
		case unicode.IsSpace(r):
			flush()
		case isPunct(r) || unicode.Is(unicode.Han, r):
			flush()
			tokens = append(tokens, string(r))
		default:
			current.WriteRune(r)
		}
	}
	flush()
	return tokens
}

// pieces applies greedy longest-match-first WordPiece to one word.
func (w *WordPiece) pieces(word string) []int64 {
	chars := []rune(word)
	if len(chars) > maxWordChars {
		return []int64{w.vocab[tokenUNK]}
	}
	var out []int64
	for start := 0; start < len(chars); {
		end := len(chars)
		matched := int64(-1)
		for ; end > start; end-- {
			sub := string(chars[start:end])
			if start > 0 {
				sub = "##" + sub
			}
			if id, ok := w.vocab[sub]; ok {
				matched = id
				break
			}
		}
		if matched < 0 {
			return []int64{w.vocab[tokenUNK]}
		}
		out = append(out, matched)
		start = end
	}
	return out
}

func isPunct(r rune) bool {
	if (r >= 33 && r <= 47) || (r >= 58 && r <= 64) || (r >= 91 && r <= 96) || (r >= 123 && r <= 126) {
		return true
	}
	return unicode.IsPunct(r)
}
