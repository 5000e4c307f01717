package text

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

var ErrInvalidSplitter = errors.New("invalid splitter parameters")

// DefaultSeparators are tried in order, coarsest boundary first. The empty
// separator splits into single runes and always applies.
var DefaultSeparators = []string{"\n\n", "\n", " ", ""}

// Splitter breaks text into overlapping chunks of at most Size runes,
// preferring paragraph, then line, then word boundaries.
type Splitter struct {
	Size    int
	Overlap int
}

func NewSplitter(size, overlap int) (Splitter, error) {
	s := Splitter{Size: size, Overlap: overlap}
	if err := s.Validate(); err != nil {
		return Splitter{}, err
	}
	return s, nil
}

func (s Splitter) Validate() error {
	if s.Size <= 0 {
		return fmt.Errorf("%w: size %d must be positive", ErrInvalidSplitter, s.Size)
	}
	if s.Overlap < 0 || s.Overlap >= s.Size {
		return fmt.Errorf("%w: overlap %d must be in [0, %d)", ErrInvalidSplitter, s.Overlap, s.Size)
	}
	return nil
}

// Split returns the chunks of text in document order. Chunks are trimmed
// and never empty. The same input always yields the same output.
func (s Splitter) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return s.split(text, DefaultSeparators)
}

// Split is a convenience wrapper around Splitter. Invalid parameters yield nil.
func Split(text string, size, overlap int) []string {
	s, err := NewSplitter(size, overlap)
	if err != nil {
		return nil
	}
	return s.Split(text)
}

func (s Splitter) split(text string, separators []string) []string {
	separator := separators[len(separators)-1]
	var finer []string
	for i, sep := range separators {
		if sep == "" {
			separator = sep
			break
		}
		if strings.Contains(text, sep) {
			separator = sep
			finer = separators[i+1:]
			break
		}
	}

	var chunks []string
	var pending []string

	for _, piece := range splitKeep(text, separator) {
		if piece == "" {
			continue
		}
		if runeLen(piece) < s.Size {
			pending = append(pending, piece)
			continue
		}

		// Oversized piece: flush what fits, then recurse with finer separators
		if len(pending) > 0 {
			chunks = append(chunks, s.merge(pending)...)
			pending = nil
		}
		if len(finer) == 0 {
			if t := strings.TrimSpace(piece); t != "" {
				chunks = append(chunks, t)
			}
			continue
		}
		chunks = append(chunks, s.split(piece, finer)...)
	}

	if len(pending) > 0 {
		chunks = append(chunks, s.merge(pending)...)
	}
	return chunks
}

// merge packs pieces into chunks up to Size runes, carrying up to Overlap
// runes of trailing pieces into the next chunk. Pieces already hold their
// separators, so they are concatenated as is.
func (s Splitter) merge(pieces []string) []string {
	var chunks []string
	var window []string
	total := 0

	for _, piece := range pieces {
		n := runeLen(piece)

		if total+n > s.Size && len(window) > 0 {
			if chunk := strings.TrimSpace(strings.Join(window, "")); chunk != "" {
				chunks = append(chunks, chunk)
			}
			for total > s.Overlap || (total+n > s.Size && total > 0) {
				total -= runeLen(window[0])
				window = window[1:]
			}
		}

		window = append(window, piece)
		total += n
	}

	if chunk := strings.TrimSpace(strings.Join(window, "")); chunk != "" {
		chunks = append(chunks, chunk)
	}
	return chunks
}

// splitKeep splits text on separator and prefixes every piece after the first
// with it, so runs of separators survive the round trip.
func splitKeep(text, separator string) []string {
	if separator == "" {
		out := make([]string, 0, utf8.RuneCountInString(text))
		for _, r := range text {
			out = append(out, string(r))
		}
		return out
	}
	parts := strings.Split(text, separator)
	out := make([]string, 0, len(parts))
	out = append(out, parts[0])
	for _, p := range parts[1:] {
		out = append(out, separator+p)
	}
	return out
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
