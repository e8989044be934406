package ffmpeg

import (
	"errors"
	"testing"

	"github.com/asticode/go-astiav"
)

func TestSend(t *testing.T) {
	errBroken := errors.New("broken")
	tests := []struct {
		name     string
		pushes   []error
		drainErr error
		drains   int
		dropped  bool
		err      error
	}{
		{name: "accepted", pushes: []error{nil}},
		{name: "full, accepted after drain", pushes: []error{astiav.ErrEagain, nil}, drains: 1},
		{name: "still full", pushes: []error{astiav.ErrEagain, astiav.ErrEagain}, drains: 1, dropped: true},
		{name: "push fails", pushes: []error{errBroken}, err: errBroken},
		{name: "drain fails", pushes: []error{astiav.ErrEagain}, drainErr: errBroken, drains: 1, err: errBroken},
		{name: "retry fails", pushes: []error{astiav.ErrEagain, errBroken}, drains: 1, err: errBroken},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			pushes, drains := 0, 0
			push := func() error {
				if pushes >= len(test.pushes) {
					t.Fatalf("unexpected push %v", pushes+1)
				}
				pushes++
				return test.pushes[pushes-1]
			}
			drain := func() error { drains++; return test.drainErr }

			dropped, err := send(push, drain)
			if !errors.Is(err, test.err) {
				t.Errorf("err %v, want %v", err, test.err)
			}
			if dropped != test.dropped {
				t.Errorf("dropped %v, want %v", dropped, test.dropped)
			}
			if pushes != len(test.pushes) || drains != test.drains {
				t.Errorf("%v pushes %v drains, want %v and %v", pushes, drains, len(test.pushes), test.drains)
			}
		})
	}
}
