package profanity

import "testing"

func TestContains(t *testing.T) {
	f, err := Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}

	tests := []struct {
		text string
		want bool
	}{
		{"Evening check-in", false},
		{"this is shit", true},
		{"sh1t happens", true},
		{"$hit", true},
		{"shiit", true},
		{"Scunthorpe meetup", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := f.Contains(tt.text); got != tt.want {
			t.Errorf("Contains(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}

	if !f.Contains("fine", "shit") {
		t.Fatal("any profane text should match")
	}
}

func TestEmptyFilter(t *testing.T) {
	var nilFilter *Filter
	if nilFilter.Contains("shit") || New(nil).Contains("shit") {
		t.Fatal("an empty filter matches nothing")
	}
}
