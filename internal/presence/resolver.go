package presence

import "time"

// Resolve derives the channel's presence from an unordered list of video records.
//
// A Live record wins over everything else; if several are live the first one in
// input order is reported. Without a live record, the latest PublishedAt among past
// videos is reported as NotLive. Anything else, including an empty list, is Unknown.
func Resolve(records []VideoRecord) State {
	for _, r := range records {
		if r.Status == StatusLive {
			return Live{VideoID: r.ID}
		}
	}

	var (
		last  time.Time
		found bool
	)
	for _, r := range records {
		if r.Status != StatusPast || r.PublishedAt == nil {
			continue
		}
		if !found || r.PublishedAt.After(last) {
			last = *r.PublishedAt
			found = true
		}
	}
	if found {
		return NotLive{LastLive: last}
	}

	return Unknown{}
}
