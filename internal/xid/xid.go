// Package xid generates prefixed random identifiers such as
// "sale-6f1c9a...". The prefix makes IDs self-describing in logs
// and receipts.
package xid

import (
	"crypto/rand"
	"encoding/hex"
	"strconv"
	"time"
)

// New returns a new identifier of the form "<prefix>-<hex>".
func New(prefix string) string {
	var buf [12]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// rand.Read failing is effectively fatal for the process;
		// a clock suffix keeps the ID unique enough to limp along.
		return prefix + "-" + strconv.FormatInt(time.Now().UnixNano(), 36)
	}
	return prefix + "-" + hex.EncodeToString(buf[:])
}
