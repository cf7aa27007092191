package classifier

import "regexp"

// timeSensitivePatterns mark queries whose correct answer drifts over
// time. A single match is enough to classify the query as time
// sensitive.
var timeSensitivePatterns = compileAll(
	`\btoday\b`,
	`\bnow\b`,
	`\bcurrent(ly)?\b`,
	`\blatest\b`,
	`\brecent(ly)?\b`,
	`\byesterday\b`,
	`\btomorrow\b`,
	`\bthis week\b`,
	`\btonight\b`,
	`\bweather\b`,
	`\bforecast\b`,
	`\btemperature\b`,
	`\bnews\b`,
	`\bheadlines?\b`,
	`\bbreaking\b`,
	`\bstock\b`,
	`\bprice\b`,
	`\bmarket\b`,
	`\btrading\b`,
	`\bbitcoin\b`,
	`\bscore\b`,
	`\bgame\b`,
	`\bmatch\b`,
	`\bwon\b`,
	`\blost\b`,
)

// evergreenPatterns mark factual phrasings whose answers do not change.
// They are checked before the time-sensitive list and override it.
var evergreenPatterns = compileAll(
	`who was the first`,
	`what year did`,
	`definition of`,
	`what is a\b`,
	`how do you`,
	`history of`,
)

// topicLexicon pairs a topic tag with its compiled match patterns.
type topicLexicon struct {
	topic    string
	patterns []*regexp.Regexp
}

// topicLexicons fixes the evaluation order for topic scoring: weather,
// finance, sports, technology, science, history, geography, news.
var topicLexicons = []topicLexicon{
	{topic: TopicWeather, patterns: compileAll(
		`\bweather\b`,
		`\bforecast\b`,
		`\btemperature\b`,
		`\brain(ing|y)?\b`,
		`\bsunny\b`,
		`\bcloudy\b`,
		`\bsnow(ing|y)?\b`,
		`\bhumidity\b`,
		`\bclimate\b`,
	)},
	{topic: TopicFinance, patterns: compileAll(
		`\bstock\b`,
		`\bprice\b`,
		`\bmarket\b`,
		`\btrading\b`,
		`\bbitcoin\b`,
		`\bcrypto\b`,
		`\binvest(ment|ing)?\b`,
		`\bdividend\b`,
		`\bshares?\b`,
		`\bportfolio\b`,
		`\bindex\b`,
		`\bnasdaq\b`,
		`\bs&p\b`,
	)},
	{topic: TopicSports, patterns: compileAll(
		`\bscore\b`,
		`\bgame\b`,
		`\bmatch\b`,
		`\bteam\b`,
		`\bplayer\b`,
		`\bwon\b`,
		`\blost\b`,
		`\bchampion(ship)?\b`,
		`\bleague\b`,
		`\btournament\b`,
		`\bfootball\b`,
		`\bbasketball\b`,
		`\bsoccer\b`,
		`\btennis\b`,
		`\bolympic\b`,
	)},
	{topic: TopicTechnology, patterns: compileAll(
		`\bprogramming\b`,
		`\bsoftware\b`,
		`\bcode\b`,
		`\bcomputer\b`,
		`\balgorithm\b`,
		`\bdatabase\b`,
		`\bapi\b`,
		`\bpython\b`,
		`\bjavascript\b`,
		`\bjava\b`,
		`\brust\b`,
		`\bmachine learning\b`,
		`\bai\b`,
		`\bartificial intelligence\b`,
		`\bneural\b`,
		`\bdeep learning\b`,
		`\bframework\b`,
		`\blibrary\b`,
	)},
	{topic: TopicScience, patterns: compileAll(
		`\bphysics\b`,
		`\bchemistry\b`,
		`\bbiology\b`,
		`\bmath(ematics)?\b`,
		`\bscien(ce|tific|tist)\b`,
		`\batom\b`,
		`\bmolecule\b`,
		`\bcell\b`,
		`\bdna\b`,
		`\bevolution\b`,
		`\btheory\b`,
		`\bexperiment\b`,
		`\bquantum\b`,
		`\brelativity\b`,
		`\bgravity\b`,
	)},
	{topic: TopicHistory, patterns: compileAll(
		`\bhistory\b`,
		`\bhistorical\b`,
		`\bwar\b`,
		`\bcentury\b`,
		`\bancient\b`,
		`\bempire\b`,
		`\bking\b`,
		`\bqueen\b`,
		`\bpresident\b`,
		`\brevolution\b`,
		`\bcivilization\b`,
		`\bcolonial\b`,
		`\bmedieval\b`,
	)},
	{topic: TopicGeography, patterns: compileAll(
		`\bcapital\b`,
		`\bcountry\b`,
		`\bcity\b`,
		`\bcontinent\b`,
		`\bocean\b`,
		`\bmountain\b`,
		`\briver\b`,
		`\bisland\b`,
		`\bpopulation\b`,
		`\bgeograph(y|ical)\b`,
		`\blocation\b`,
		`\bregion\b`,
	)},
	{topic: TopicNews, patterns: compileAll(
		`\bnews\b`,
		`\bheadlines?\b`,
		`\bbreaking\b`,
		`\breport(ed|ing)?\b`,
		`\bannounce(d|ment)?\b`,
		`\belection\b`,
		`\bpolitics\b`,
		`\bgovernment\b`,
	)},
}

func compileAll(exprs ...string) []*regexp.Regexp {
	patterns := make([]*regexp.Regexp, 0, len(exprs))
	for _, expr := range exprs {
		patterns = append(patterns, regexp.MustCompile(expr))
	}
	return patterns
}
