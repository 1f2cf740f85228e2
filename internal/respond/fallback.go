package respond

import (
	"hash/fnv"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// Category buckets an input for canned replies when neither the cache
// nor the model can answer.
type Category int

const (
	CategoryUnknown Category = iota
	CategoryGreeting
	CategoryFarewell
	CategoryThanks
	CategoryTime
	CategoryDate
	CategoryWeather
	CategoryStatus
)

var categoryNames = [...]string{
	"unknown", "greeting", "farewell", "thanks",
	"time", "date", "weather", "status",
}

func (c Category) String() string {
	if c < 0 || int(c) >= len(categoryNames) {
		return "unknown"
	}
	return categoryNames[c]
}

// Keyword order decides ties: concrete questions win over social
// phrases, so "hi, what time is it" counts as a time question.
var categoryKeywords = []struct {
	cat  Category
	keys []string
}{
	{CategoryTime, []string{"time", "clock", "hour"}},
	{CategoryDate, []string{"date", "day", "today", "month", "year"}},
	{CategoryWeather, []string{"weather", "temperature", "forecast", "rain", "sunny"}},
	{CategoryStatus, []string{"how are you", "are you there", "are you ok", "status", "you alright"}},
	{CategoryThanks, []string{"thanks", "thank", "thank you", "appreciate"}},
	{CategoryFarewell, []string{"bye", "goodbye", "good night", "see you", "farewell"}},
	{CategoryGreeting, []string{"hello", "hi", "hey", "greetings", "good morning", "good afternoon", "good evening"}},
}

// Classify matches whole words and phrases against the tables above.
func Classify(text string) Category {
	padded := " " + foldWords(text) + " "
	for _, entry := range categoryKeywords {
		for _, key := range entry.keys {
			if strings.Contains(padded, " "+key+" ") {
				return entry.cat
			}
		}
	}
	return CategoryUnknown
}

// foldWords lowercases and strips punctuation so keyword matching sees
// clean word boundaries.
func foldWords(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

var fallbackPools = map[Category][]string{
	CategoryGreeting: {
		"Hello! I'm Gideon. What can I do for you?",
		"Hi there! Ready when you are.",
		"Hey! How can I help?",
	},
	CategoryFarewell: {
		"Goodbye! I'll be here if you need me.",
		"See you later!",
		"Bye! Just say the word when you need me again.",
	},
	CategoryThanks: {
		"You're welcome!",
		"Happy to help!",
		"Anytime!",
	},
	CategoryWeather: {
		"I can't reach the weather service right now, sorry.",
		"No weather data at the moment, try me again in a bit.",
		"Weather lookups are offline right now.",
	},
	CategoryStatus: {
		"All good here and listening.",
		"Running fine, thanks for asking.",
		"I'm up. My language model link is shaky, so answers may be limited.",
	},
	CategoryUnknown: {
		"Sorry, I'm having trouble connecting to my AI services right now.",
		"My language model is unreachable, so I can only handle simple requests at the moment.",
		"I can't reach my reasoning service right now. Could you try again in a bit?",
	},
}

// Fallback produces canned replies without any model. Time and date
// questions get real answers; the rest draw from a small pool per
// category, rotated by input and wall clock so repeats vary.
type Fallback struct {
	now func() time.Time
}

func NewFallback() *Fallback {
	return &Fallback{now: time.Now}
}

// Reply never returns an empty string.
func (f *Fallback) Reply(text string) (string, Category) {
	cat := Classify(text)
	switch cat {
	case CategoryTime:
		return "It's " + f.now().Format("3:04 PM") + ".", cat
	case CategoryDate:
		return "Today is " + f.now().Format("Monday, January 2") + ".", cat
	}

	pool, ok := fallbackPools[cat]
	if !ok {
		pool = fallbackPools[CategoryUnknown]
	}
	return pool[pick(text, f.now(), len(pool))], cat
}

// pick keeps the same pool entry for five minutes per input, then
// rotates.
func pick(text string, now time.Time, n int) int {
	h := fnv.New64a()
	h.Write([]byte(text))
	h.Write([]byte(strconv.FormatInt(now.Unix()/300, 10)))
	return int(h.Sum64() % uint64(n))
}
