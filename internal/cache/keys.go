package cache

import "fmt"

func ContentStatsKey(collID *int64) string {
	if collID == nil {
		return "catalog:stats:all"
	}
	return fmt.Sprintf("catalog:stats:%d", *collID)
}

func RequestKey(requestID int64) string {
	return fmt.Sprintf("request:%d", requestID)
}
