package timeutil

import "time"

func NowUnix() int64 {
	return time.Now().Unix()
}

func DaysAgoUnix(days int) int64 {
	return time.Now().Add(-time.Duration(days) * 24 * time.Hour).Unix()
}
