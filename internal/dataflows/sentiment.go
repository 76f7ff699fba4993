package dataflows

import (
	"strings"

	"github.com/dyike/SchwabAI/internal/models"
)

var (
	positiveWords = []string{
		"beat", "beats", "surge", "surges", "soar", "rally", "gain", "gains", "upgrade", "upgraded",
		"record", "growth", "profit", "strong", "bullish", "outperform", "raises", "higher", "buyback",
	}
	negativeWords = []string{
		"miss", "misses", "plunge", "plunges", "drop", "drops", "fall", "falls", "downgrade", "downgraded",
		"loss", "lawsuit", "probe", "weak", "bearish", "underperform", "cuts", "lower", "recall", "layoffs",
	}
)

// Sentiment scores headlines and summaries by keyword counts. The result is
// in [-1, 1]; zero means neutral or no articles.
func Sentiment(articles []models.NewsArticle) float64 {
	var pos, neg int
	for _, a := range articles {
		for _, w := range strings.Fields(strings.ToLower(a.Headline + " " + a.Summary)) {
			w = strings.Trim(w, ".,;:!?\"'()")
			if containsWord(positiveWords, w) {
				pos++
			}
			if containsWord(negativeWords, w) {
				neg++
			}
		}
	}
	if pos+neg == 0 {
		return 0
	}
	return float64(pos-neg) / float64(pos+neg)
}

func containsWord(words []string, w string) bool {
	for _, x := range words {
		if x == w {
			return true
		}
	}
	return false
}
