package recorder

import (
	"regexp"
	"testing"
	"time"
)

func TestParseName(t *testing.T) {
	now := time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)
	tests := []struct {
		name string
		want string
	}{
		{name: "movie.mp4", want: "movie.mp4"},
		{name: "movie_%date:20060102_150405%.mp4", want: "movie_20240309_140507.mp4"},
		{name: "%date:2006%/clip.mp4", want: "2024/clip.mp4"},
	}
	for _, test := range tests {
		if got := ParseName(test.name, now); got != test.want {
			t.Errorf("%v: got %v, want %v", test.name, got, test.want)
		}
	}
}

func TestParseNameRandom(t *testing.T) {
	got := ParseName("movie_%rand:6%.mp4", time.Now())
	if !regexp.MustCompile(`^movie_[a-zA-Z]{6}\.mp4$`).MatchString(got) {
		t.Errorf("got %v", got)
	}
	if a, b := ParseName("%rand:12%", time.Now()), ParseName("%rand:12%", time.Now()); a == b {
		t.Errorf("same random part twice: %v", a)
	}
}

func TestParseNameUUID(t *testing.T) {
	got := ParseName("take_%uuid%.mp4", time.Now())
	if !regexp.MustCompile(`^take_[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[0-9a-f]{4}-[0-9a-f]{12}\.mp4$`).MatchString(got) {
		t.Errorf("got %v", got)
	}
}
