// Package blockweight implements the BIPBBB block weight multiplier: miners
// vote through their coinbase and the multiplier is retargeted once per
// difficulty adjustment interval.
package blockweight

import (
	"bytes"
	"strconv"
)

// VoteMarker prefixes a vote inside a coinbase script, e.g. "/BIPBBB/X42/".
const VoteMarker = "/BIPBBB/X"

// maxVoteDigits caps a vote at 99999.
const maxVoteDigits = 5

var voteMarker = []byte(VoteMarker)

// FindVote extracts the multiplier vote from coinbase script bytes. It returns
// 0 when no well formed vote is present, which is indistinguishable from an
// explicit vote of zero.
func FindVote(coinbase []byte) uint32 {
	if len(coinbase) < len(voteMarker)+1 {
		return 0
	}

	start := bytes.Index(coinbase, voteMarker)
	if start < 0 {
		return 0
	}

	digitsStart := start + len(voteMarker)
	end := bytes.IndexByte(coinbase[digitsStart:], '/')
	if end < 0 {
		return 0
	}
	if end > maxVoteDigits {
		return 0
	}

	var vote uint32
	for _, c := range coinbase[digitsStart : digitsStart+end] {
		if c < '0' || c > '9' {
			return 0
		}
		vote = vote*10 + uint32(c-'0')
	}

	return vote
}

// FormatVote renders vote in the coinbase wire format understood by FindVote.
func FormatVote(vote uint32) []byte {
	b := make([]byte, 0, len(voteMarker)+maxVoteDigits+1)
	b = append(b, voteMarker...)
	b = strconv.AppendUint(b, uint64(vote), 10)
	return append(b, '/')
}
