package constants

import (
	"fmt"
	"time"
)

const (
	CACHE_PREFIX = "gvteway"

	// Waitlist analytics cache keys
	WAITLIST_STATS_KEY      = CACHE_PREFIX + ":waitlist:stats:%s"      // eventID
	WAITLIST_CONVERSION_KEY = CACHE_PREFIX + ":waitlist:conversion:%s" // eventID

	// TTLs
	TTL_WAITLIST_STATS      = 1 * time.Minute
	TTL_WAITLIST_CONVERSION = 10 * time.Minute
)

func BuildWaitlistStatsKey(eventID string) string {
	return fmt.Sprintf(WAITLIST_STATS_KEY, eventID)
}

func BuildWaitlistConversionKey(eventID string) string {
	return fmt.Sprintf(WAITLIST_CONVERSION_KEY, eventID)
}
