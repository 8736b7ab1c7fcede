// Package textutil provides pure text normalization helpers feeding the
// sentiment and issue classifiers.
package textutil

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
)

var (
	urlPattern     = regexp.MustCompile(`https?://\S+|www\.\S+`)
	mentionPattern = regexp.MustCompile(`@(\w+)`)
	hashtagPattern = regexp.MustCompile(`#(\w+)`)
)

// stopwords is the fixed stopword list removed during normalization.
var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "but": true, "by": true, "for": true, "from": true,
	"had": true, "has": true, "have": true, "he": true, "her": true,
	"his": true, "i": true, "if": true, "in": true, "is": true, "it": true,
	"its": true, "me": true, "my": true, "of": true, "on": true, "or": true,
	"our": true, "she": true, "so": true, "that": true, "the": true,
	"their": true, "them": true, "there": true, "they": true, "this": true,
	"to": true, "was": true, "we": true, "were": true, "will": true,
	"with": true, "you": true, "your": true,
}

// Normalize strips URLs, mentions, hashtags and punctuation, lowercases,
// tokenizes on whitespace, and removes stopwords. Empty input yields an
// empty token list; there is no failure mode.
func Normalize(text string) []string {
	if text == "" {
		return nil
	}

	text = urlPattern.ReplaceAllString(text, " ")
	text = mentionPattern.ReplaceAllString(text, " ")
	text = hashtagPattern.ReplaceAllString(text, " ")
	text = stripPunctuation(strings.ToLower(text))

	fields := strings.Fields(text)
	tokens := make([]string, 0, len(fields))
	for _, tok := range fields {
		if stopwords[tok] {
			continue
		}
		tokens = append(tokens, tok)
	}
	return tokens
}

// ExtractHashtags returns the lowercased hashtag bodies in first-seen order.
func ExtractHashtags(text string) []string {
	return extractTagged(hashtagPattern, text)
}

// ExtractMentions returns the lowercased mention bodies in first-seen order.
func ExtractMentions(text string) []string {
	return extractTagged(mentionPattern, text)
}

// ExtractKeywords returns up to topN frequency-ranked tokens of length >= 3,
// ties broken by first-seen order.
func ExtractKeywords(text string, topN int) []string {
	if topN <= 0 {
		return nil
	}

	counts := make(map[string]int)
	firstSeen := make(map[string]int)
	order := 0
	for _, tok := range Normalize(text) {
		if len(tok) < 3 {
			continue
		}
		if _, ok := counts[tok]; !ok {
			firstSeen[tok] = order
			order++
		}
		counts[tok]++
	}

	keywords := make([]string, 0, len(counts))
	for tok := range counts {
		keywords = append(keywords, tok)
	}
	sort.Slice(keywords, func(i, j int) bool {
		if counts[keywords[i]] != counts[keywords[j]] {
			return counts[keywords[i]] > counts[keywords[j]]
		}
		return firstSeen[keywords[i]] < firstSeen[keywords[j]]
	})

	if len(keywords) > topN {
		keywords = keywords[:topN]
	}
	return keywords
}

func extractTagged(pattern *regexp.Regexp, text string) []string {
	matches := pattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(matches))
	result := make([]string, 0, len(matches))
	for _, m := range matches {
		tag := strings.ToLower(m[1])
		if seen[tag] {
			continue
		}
		seen[tag] = true
		result = append(result, tag)
	}
	return result
}

// stripPunctuation replaces non-alphanumeric runes with spaces, preserving
// word boundaries.
func stripPunctuation(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte(' ')
		}
	}
	return b.String()
}
