package respond

import (
	"testing"
	"time"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		in   string
		want Category
	}{
		{"what time is it", CategoryTime},
		{"hi, what time is it?", CategoryTime},
		{"what hour do you have", CategoryTime},
		{"what's today's date", CategoryDate},
		{"what day is it", CategoryDate},
		{"how's the weather", CategoryWeather},
		{"will it rain tomorrow", CategoryWeather},
		{"how are you", CategoryStatus},
		{"are you there", CategoryStatus},
		{"thank you so much", CategoryThanks},
		{"thanks", CategoryThanks},
		{"goodbye", CategoryFarewell},
		{"see you later", CategoryFarewell},
		{"good night everyone", CategoryFarewell},
		{"hello", CategoryGreeting},
		{"hey", CategoryGreeting},
		{"good morning", CategoryGreeting},
		{"open the garage", CategoryUnknown},
		{"this is history", CategoryUnknown}, // no bare-substring matches
		{"", CategoryUnknown},
	}
	for _, tc := range cases {
		if got := Classify(tc.in); got != tc.want {
			t.Errorf("Classify(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestFallbackTimeAndDate(t *testing.T) {
	f := &Fallback{now: func() time.Time {
		return time.Date(2025, 3, 9, 15, 4, 0, 0, time.UTC)
	}}

	reply, cat := f.Reply("what time is it")
	if cat != CategoryTime {
		t.Fatalf("category = %v, want time", cat)
	}
	if reply != "It's 3:04 PM." {
		t.Errorf("time reply = %q", reply)
	}

	reply, cat = f.Reply("what day is it")
	if cat != CategoryDate {
		t.Fatalf("category = %v, want date", cat)
	}
	if reply != "Today is Sunday, March 9." {
		t.Errorf("date reply = %q", reply)
	}
}

func TestFallbackStableWithinBucket(t *testing.T) {
	fixed := time.Unix(1000, 0)
	f := &Fallback{now: func() time.Time { return fixed }}

	first, _ := f.Reply("tell me something")
	second, _ := f.Reply("tell me something")
	if first != second {
		t.Errorf("same input in same window gave %q then %q", first, second)
	}

	pool := fallbackPools[CategoryUnknown]
	var member bool
	for _, p := range pool {
		if p == first {
			member = true
		}
	}
	if !member {
		t.Errorf("reply %q not drawn from the unknown pool", first)
	}
}

func TestFallbackNeverEmpty(t *testing.T) {
	f := NewFallback()
	inputs := []string{"", "hello", "bye", "thanks", "how are you",
		"what time is it", "what day is it", "weather", "launch the probe"}
	for _, in := range inputs {
		if reply, _ := f.Reply(in); reply == "" {
			t.Errorf("Reply(%q) returned empty string", in)
		}
	}
}

func TestCategoryString(t *testing.T) {
	if got := CategoryWeather.String(); got != "weather" {
		t.Errorf("CategoryWeather.String() = %q", got)
	}
	if got := Category(99).String(); got != "unknown" {
		t.Errorf("out-of-range category String() = %q", got)
	}
}
