package dataflows

import (
	"testing"

	"github.com/dyike/SchwabAI/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestSentiment(t *testing.T) {
	assert.Equal(t, 0.0, Sentiment(nil))
	assert.Equal(t, 1.0, Sentiment([]models.NewsArticle{{Headline: "Shares surge after earnings beat"}}))
	assert.Equal(t, -1.0, Sentiment([]models.NewsArticle{{Headline: "Stock falls on downgrade"}}))
	assert.Equal(t, 0.0, Sentiment([]models.NewsArticle{{Headline: "Upgrade offsets lawsuit"}}))
}
