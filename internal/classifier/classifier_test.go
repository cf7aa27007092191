package classifier

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClassifyClass(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  Class
	}{
		{
			name:  "weather query is time sensitive",
			query: "What's the weather in NYC today?",
			want:  ClassTimeSensitive,
		},
		{
			name:  "market query is time sensitive",
			query: "latest bitcoin price",
			want:  ClassTimeSensitive,
		},
		{
			name:  "sports result is time sensitive",
			query: "Who won the game last night?",
			want:  ClassTimeSensitive,
		},
		{
			name:  "factual lookup is evergreen",
			query: "What is the capital of France?",
			want:  ClassEvergreen,
		},
		{
			name:  "evergreen marker overrides time-sensitive vocabulary",
			query: "history of the stock market",
			want:  ClassEvergreen,
		},
		{
			name:  "definition is evergreen",
			query: "definition of recursion",
			want:  ClassEvergreen,
		},
		{
			name:  "how-to is evergreen",
			query: "how do you sort a list in python",
			want:  ClassEvergreen,
		},
		{
			name:  "empty query defaults to evergreen",
			query: "",
			want:  ClassEvergreen,
		},
		{
			name:  "word boundaries are respected",
			query: "gameplay mechanics",
			want:  ClassEvergreen,
		},
		{
			name:  "matching is case insensitive",
			query: "BREAKING NEWS",
			want:  ClassTimeSensitive,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyClass(tt.query))
		})
	}
}

func TestClassifyTopic(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  string
	}{
		{
			name:  "geography",
			query: "What is the capital of France?",
			want:  TopicGeography,
		},
		{
			name:  "weather",
			query: "What's the weather in NYC today?",
			want:  TopicWeather,
		},
		{
			name:  "finance",
			query: "latest bitcoin price",
			want:  TopicFinance,
		},
		{
			name:  "technology",
			query: "how do you write code in python",
			want:  TopicTechnology,
		},
		{
			name:  "sports",
			query: "Who won the championship game?",
			want:  TopicSports,
		},
		{
			name:  "science",
			query: "what is dna",
			want:  TopicScience,
		},
		{
			name:  "history",
			query: "the french revolution",
			want:  TopicHistory,
		},
		{
			name:  "news",
			query: "election results announced",
			want:  TopicNews,
		},
		{
			name:  "finance with symbol anchor",
			query: "s&p 500 index funds",
			want:  TopicFinance,
		},
		{
			name:  "tie between topics falls back to general",
			query: "tell me about the weather market",
			want:  TopicGeneral,
		},
		{
			name:  "no lexicon match falls back to general",
			query: "hello there",
			want:  TopicGeneral,
		},
		{
			name:  "strictly highest score wins",
			query: "sunny weather forecast",
			want:  TopicWeather,
		},
		{
			name:  "matching is case insensitive",
			query: "SUNNY WEATHER FORECAST",
			want:  TopicWeather,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyTopic(tt.query))
		})
	}
}

func TestClassifyParams(t *testing.T) {
	timeSensitive := Classify("What's the weather in NYC today?")
	assert.Equal(t, ClassTimeSensitive, timeSensitive.Class)
	assert.Equal(t, TopicWeather, timeSensitive.Topic)
	assert.Equal(t, 0.15, timeSensitive.Threshold)
	assert.Equal(t, 300*time.Second, timeSensitive.TTL)

	evergreen := Classify("What is the capital of France?")
	assert.Equal(t, ClassEvergreen, evergreen.Class)
	assert.Equal(t, TopicGeography, evergreen.Topic)
	assert.Equal(t, 0.30, evergreen.Threshold)
	assert.Equal(t, 604800*time.Second, evergreen.TTL)
}

func TestClassifyDeterministic(t *testing.T) {
	queries := []string{
		"What's the weather in NYC today?",
		"LATEST NEWS",
		"history of the stock market",
		"hello there",
		"a",
	}

	for _, q := range queries {
		first := Classify(q)
		assert.Equal(t, first, Classify(q), "repeated classification must agree for %q", q)
		assert.Equal(t, first, Classify(strings.ToLower(q)), "classification must be lowercase stable for %q", q)
	}
}

func TestParamsUnknownClass(t *testing.T) {
	threshold, ttl := Params(Class("mystery"))
	assert.Equal(t, 0.30, threshold)
	assert.Equal(t, 604800*time.Second, ttl)
}

func TestNormalizeTopic(t *testing.T) {
	assert.Equal(t, TopicWeather, NormalizeTopic("weather"))
	assert.Equal(t, TopicGeneral, NormalizeTopic("general"))
	assert.Equal(t, TopicGeneral, NormalizeTopic("pets"))
	assert.Equal(t, TopicGeneral, NormalizeTopic(""))
}
