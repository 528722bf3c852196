package timezone

import "time"

// Location is the carrier's local time, travel dates on receipts are
// always calendar dates in Taiwan.
var Location *time.Location

func init() {
	var err error
	Location, err = time.LoadLocation("Asia/Taipei")
	if err != nil {
		Location = time.FixedZone("CST", 8*60*60)
	}
}

func Now() time.Time {
	return time.Now().In(Location)
}

// ParseDate parses a YYYY-MM-DD calendar date in Taiwan time.
func ParseDate(value string) (time.Time, error) {
	return time.ParseInLocation(time.DateOnly, value, Location)
}
