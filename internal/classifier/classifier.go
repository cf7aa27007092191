// Package classifier labels natural-language queries with a freshness
// class and a topic partition. The class selects the caching policy
// (similarity threshold and TTL); the topic selects the cache partition
// searched first. Classification is pure and deterministic: regex
// lexicons against the lower-cased query text, no I/O, safe for
// concurrent use.
package classifier

import (
	"strings"
	"time"
)

// Class is the freshness category of a query.
type Class string

// Freshness classes
const (
	ClassTimeSensitive Class = "time_sensitive"
	ClassEvergreen     Class = "evergreen"
)

// Topic tags forming the closed partition set. Anything outside this
// set normalizes to TopicGeneral.
const (
	TopicWeather    = "weather"
	TopicFinance    = "finance"
	TopicSports     = "sports"
	TopicTechnology = "technology"
	TopicScience    = "science"
	TopicHistory    = "history"
	TopicGeography  = "geography"
	TopicNews       = "news"
	TopicGeneral    = "general"
)

var knownTopics = map[string]struct{}{
	TopicWeather:    {},
	TopicFinance:    {},
	TopicSports:     {},
	TopicTechnology: {},
	TopicScience:    {},
	TopicHistory:    {},
	TopicGeography:  {},
	TopicNews:       {},
	TopicGeneral:    {},
}

// cachingParams is the fixed policy table keyed by class. It is the
// only place threshold and TTL policy lives.
var cachingParams = map[Class]struct {
	threshold float64
	ttl       time.Duration
}{
	ClassTimeSensitive: {threshold: 0.15, ttl: 300 * time.Second},
	ClassEvergreen:     {threshold: 0.30, ttl: 604800 * time.Second},
}

// Classification is the immutable result of classifying one query.
type Classification struct {
	Class     Class
	Topic     string
	Threshold float64
	TTL       time.Duration
}

// Classify runs both classification stages and resolves the caching
// parameters for the resulting class.
func Classify(query string) Classification {
	class := ClassifyClass(query)
	threshold, ttl := Params(class)

	return Classification{
		Class:     class,
		Topic:     ClassifyTopic(query),
		Threshold: threshold,
		TTL:       ttl,
	}
}

// ClassifyClass labels a query as time_sensitive or evergreen.
// Evergreen markers are checked first and override any time-sensitive
// vocabulary in the same query.
func ClassifyClass(query string) Class {
	q := strings.ToLower(query)

	for _, p := range evergreenPatterns {
		if p.MatchString(q) {
			return ClassEvergreen
		}
	}

	for _, p := range timeSensitivePatterns {
		if p.MatchString(q) {
			return ClassTimeSensitive
		}
	}

	return ClassEvergreen
}

// ClassifyTopic buckets a query into one of the partition topics. Each
// topic scores one point per lexicon pattern that matches; the topic
// with the strictly highest score wins. On a tie, or when nothing
// matches, the query lands in TopicGeneral.
func ClassifyTopic(query string) string {
	q := strings.ToLower(query)

	best := TopicGeneral
	bestScore := 0
	tied := false
	for _, lex := range topicLexicons {
		score := 0
		for _, p := range lex.patterns {
			if p.MatchString(q) {
				score++
			}
		}
		switch {
		case score > bestScore:
			best = lex.topic
			bestScore = score
			tied = false
		case score > 0 && score == bestScore:
			tied = true
		}
	}

	if bestScore == 0 || tied {
		return TopicGeneral
	}
	return best
}

// Params returns the similarity threshold and entry TTL for a class.
// Unknown classes fall back to the evergreen policy.
func Params(class Class) (threshold float64, ttl time.Duration) {
	params, ok := cachingParams[class]
	if !ok {
		params = cachingParams[ClassEvergreen]
	}
	return params.threshold, params.ttl
}

// NormalizeTopic maps any value outside the closed topic set to
// TopicGeneral. Stored entries are normalized on read so that tags
// written by older builds stay inside the contract.
func NormalizeTopic(topic string) string {
	if _, ok := knownTopics[topic]; ok {
		return topic
	}
	return TopicGeneral
}
