package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCacheKeyIsStable(t *testing.T) {
	spec := PromptSpec{
		Task:   "offer_extraction",
		System: "extract offers",
		Prompt: "Subject: offer",
		Facts:  map[string]interface{}{"a": 1, "b": "two"},
	}

	assert.Equal(t, spec.CacheKey(), spec.CacheKey())
	assert.Len(t, spec.CacheKey(), 64)
}

func TestCacheKeyIgnoresMapOrder(t *testing.T) {
	first := PromptSpec{
		Task:  "t",
		Facts: map[string]interface{}{"price": 100.0, "days": 21, "currency": "EUR"},
	}
	second := PromptSpec{
		Task:  "t",
		Facts: map[string]interface{}{"currency": "EUR", "days": 21, "price": 100.0},
	}

	assert.Equal(t, first.CacheKey(), second.CacheKey())
}

func TestCacheKeyRoundsMoneyValues(t *testing.T) {
	base := PromptSpec{Task: "t", Facts: map[string]interface{}{"price": 24500.00}}
	noisy := PromptSpec{Task: "t", Facts: map[string]interface{}{"price": 24500.0001}}
	different := PromptSpec{Task: "t", Facts: map[string]interface{}{"price": 24500.02}}

	assert.Equal(t, base.CacheKey(), noisy.CacheKey())
	assert.NotEqual(t, base.CacheKey(), different.CacheKey())
}

func TestCacheKeyTrimsWhitespace(t *testing.T) {
	first := PromptSpec{Task: "t", Prompt: "hello"}
	second := PromptSpec{Task: "t", Prompt: "  hello  "}

	assert.Equal(t, first.CacheKey(), second.CacheKey())
}

func TestCacheKeySeparatesTasks(t *testing.T) {
	first := PromptSpec{Task: "offer_extraction", Prompt: "p"}
	second := PromptSpec{Task: "offer_analysis", Prompt: "p"}

	assert.NotEqual(t, first.CacheKey(), second.CacheKey())
}
