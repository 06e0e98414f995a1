package domain

import (
	"cmp"
	"math"
	"net/url"
	"slices"
	"strings"
)

const (
	ScoreExactMatch     = 100.0
	ScorePrefixMatch    = 75.0
	ScoreSubstringMatch = 50.0
	ScoreWordsMatch     = 40.0
	ScoreFuzzyMatch     = 25.0

	// Earlier substring hits score higher.
	ScorePositionBonus = 10.0
)

// MatchScore rates how well query matches a bookmark's title or host.
// Zero means no match. Matching is case-insensitive; the best of title
// and host wins.
func MatchScore(query string, b Bookmark) float64 {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return 0
	}
	return math.Max(scoreText(q, strings.ToLower(b.Title)), scoreText(q, hostOf(b.URL)))
}

func scoreText(q, text string) float64 {
	if text == "" {
		return 0
	}
	if q == text {
		return ScoreExactMatch
	}
	if strings.HasPrefix(text, q) {
		return ScorePrefixMatch
	}
	if i := strings.Index(text, q); i >= 0 {
		return ScoreSubstringMatch + ScorePositionBonus*math.Exp(-float64(i)*0.3)
	}

	// "docker hub" matches "Hub for Docker images".
	if words := strings.Fields(q); len(words) > 1 {
		all := true
		for _, w := range words {
			if !strings.Contains(text, w) {
				all = false
				break
			}
		}
		if all {
			return ScoreWordsMatch
		}
	}

	// Subsequence: "jlfn" matches "jellyfin". Denser hits score higher.
	if isSubsequence(q, text) {
		return ScoreFuzzyMatch * float64(len(q)) / float64(len(text))
	}
	return 0
}

func isSubsequence(q, text string) bool {
	rest := text
	for _, c := range q {
		if c == ' ' {
			continue
		}
		i := strings.IndexRune(rest, c)
		if i < 0 {
			return false
		}
		rest = rest[i+len(string(c)):]
	}
	return true
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

// Search returns the rows matching query, best match first. Rows with an
// equal score keep their input order. An empty query returns rows as is.
func Search(query string, rows []Bookmark) []Bookmark {
	if strings.TrimSpace(query) == "" {
		return rows
	}

	type scored struct {
		row   Bookmark
		score float64
	}
	hits := make([]scored, 0, len(rows))
	for _, b := range rows {
		if s := MatchScore(query, b); s > 0 {
			hits = append(hits, scored{row: b, score: s})
		}
	}
	slices.SortStableFunc(hits, func(a, b scored) int {
		return cmp.Compare(b.score, a.score)
	})

	out := make([]Bookmark, len(hits))
	for i, h := range hits {
		out[i] = h.row
	}
	return out
}
