package recorder

import (
	"math/rand/v2"
	"regexp"
	"strconv"
	"time"

	"github.com/gofrs/uuid"
)

// naming regexp
var (
	reDate = regexp.MustCompile(`%date:(.*?)%`)
	reRand = regexp.MustCompile(`%rand:(\d+)%`)
	reUUID = regexp.MustCompile(`%uuid%`)
)

// ParseName expands %date:<layout>% with the given time and
// %rand:<n>% with n random letters, %uuid% with a random UUID.
func ParseName(name string, now time.Time) (out string) {
	if d := reDate.FindStringSubmatch(name); d != nil {
		out = reDate.ReplaceAllString(name, now.Format(d[1]))
	} else {
		out = name
	}
	if rnd := reRand.FindStringSubmatch(out); rnd != nil {
		out = reRand.ReplaceAllString(out, random(rnd[1]))
	}
	if reUUID.MatchString(out) {
		if id, err := uuid.NewV4(); err == nil {
			out = reUUID.ReplaceAllString(out, id.String())
		}
	}
	return
}

const letterBytes = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

func random(num string) string {
	n, err := strconv.Atoi(num)
	if err != nil {
		return ""
	}
	b := make([]byte, n)
	for i := range b {
		b[i] = letterBytes[rand.IntN(len(letterBytes))]
	}
	return string(b)
}
