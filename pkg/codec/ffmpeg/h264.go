package ffmpeg

import (
	"encoding/binary"
	"errors"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
)

var errNoParameterSets = errors.New("no SPS/PPS")

// parameterSets pulls SPS and PPS out of encoder extradata, which is
// either Annex-B or an avcC record depending on the encoder.
func parameterSets(extra []byte) (sps, pps []byte, err error) {
	if len(extra) > 0 && extra[0] == 1 {
		return avcC(extra)
	}
	var au h264.AnnexB
	if err := au.Unmarshal(extra); err != nil {
		return nil, nil, err
	}
	for _, nalu := range au {
		if len(nalu) == 0 {
			continue
		}
		switch h264.NALUType(nalu[0] & 0x1f) {
		case h264.NALUTypeSPS:
			sps = nalu
		case h264.NALUTypePPS:
			pps = nalu
		}
	}
	if sps == nil || pps == nil {
		return nil, nil, errNoParameterSets
	}
	return sps, pps, nil
}

// avcC reads the first SPS and PPS of an AVCDecoderConfigurationRecord.
func avcC(b []byte) (sps, pps []byte, err error) {
	if len(b) < 7 {
		return nil, nil, errNoParameterSets
	}
	read := func(b []byte) ([]byte, []byte, bool) {
		if len(b) < 2 {
			return nil, nil, false
		}
		n := int(binary.BigEndian.Uint16(b))
		if len(b) < 2+n {
			return nil, nil, false
		}
		return b[2 : 2+n], b[2+n:], true
	}
	rest := b[5:]
	if rest[0]&0x1f == 0 {
		return nil, nil, errNoParameterSets
	}
	nSPS := int(rest[0] & 0x1f)
	rest = rest[1:]
	for i := 0; i < nSPS; i++ {
		var x []byte
		var ok bool
		if x, rest, ok = read(rest); !ok {
			return nil, nil, errNoParameterSets
		}
		if sps == nil {
			sps = x
		}
	}
	if len(rest) < 1 || rest[0] == 0 {
		return nil, nil, errNoParameterSets
	}
	rest = rest[1:]
	if pps, _, ok := read(rest); ok {
		return sps, pps, nil
	}
	return nil, nil, errNoParameterSets
}
