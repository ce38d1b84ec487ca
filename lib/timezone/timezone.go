package timezone

import "time"

var Location *time.Location

func init() {
	var err error
	Location, err = time.LoadLocation("Europe/Istanbul")
	if err != nil {
		panic(err)
	}
}

// the portal reports dates in Turkish local time, so timestamps shown
// next to portal data are kept there too regardless of where the tool
// itself runs
func Now() time.Time {
	return time.Now().In(Location)
}
