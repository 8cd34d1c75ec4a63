package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"Confluence/pkg/util"
)

// BucketKey names the slot params occupy during the ttl window containing now.
// The layout is <prefix>:<bucket unix seconds>:<digest>, where the digest is
// the first 16 bytes of a SHA-256 over the params, each terminated by a unit
// separator so ("ab", "c") and ("a", "bc") never collide. Maps format with
// sorted keys, so a score map digests the same regardless of insertion order.
func BucketKey(prefix string, ttl time.Duration, now time.Time, params ...interface{}) string {
	bucket := util.FloorToBucket(now, ttl).Unix()

	h := sha256.New()
	for _, p := range params {
		fmt.Fprintf(h, "%v\x1f", p)
	}
	sum := h.Sum(nil)

	return prefix + ":" + strconv.FormatInt(bucket, 10) + ":" + hex.EncodeToString(sum[:16])
}
