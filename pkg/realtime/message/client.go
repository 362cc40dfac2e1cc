package message

import (
	"math/rand"
	"strconv"
	"time"
)

// NewClientID returns an identifier of the form client-<unix ms>-<9 base36>
func NewClientID(now time.Time) string {
	const alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

	suffix := make([]byte, 9)
	for i := range suffix {
		suffix[i] = alphabet[rand.Intn(len(alphabet))]
	}

	return "client-" + strconv.FormatInt(now.UnixMilli(), 10) + "-" + string(suffix)
}
