package ffmpeg

import (
	"bytes"
	"testing"
)

var (
	testSPS = []byte{0x67, 0x42, 0xc0, 0x28, 0xd9, 0x00, 0x78, 0x02}
	testPPS = []byte{0x68, 0xce, 0x3c, 0x80}
)

func TestParameterSets(t *testing.T) {
	annexB := append(append([]byte{0, 0, 0, 1}, testSPS...), append([]byte{0, 0, 1}, testPPS...)...)
	record := []byte{1, 0x42, 0xc0, 0x28, 0xff, 0xe1, 0, byte(len(testSPS))}
	record = append(record, testSPS...)
	record = append(record, 1, 0, byte(len(testPPS)))
	record = append(record, testPPS...)

	tests := []struct {
		name  string
		extra []byte
		err   bool
	}{
		{name: "annex-b", extra: annexB},
		{name: "avcC", extra: record},
		{name: "empty", extra: nil, err: true},
		{name: "truncated avcC", extra: record[:10], err: true},
		{name: "sps only", extra: append([]byte{0, 0, 0, 1}, testSPS...), err: true},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			sps, pps, err := parameterSets(test.extra)
			if test.err {
				if err == nil {
					t.Errorf("no error for %x", test.extra)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(sps, testSPS) || !bytes.Equal(pps, testPPS) {
				t.Errorf("got sps %x pps %x", sps, pps)
			}
		})
	}
}
