package holodex

import (
	"time"

	"livewatch/internal/presence"
)

// video is the subset of the Holodex video object we read.
type video struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Type        string  `json:"type"`
	Status      string  `json:"status"`
	PublishedAt *string `json:"published_at"`
	AvailableAt *string `json:"available_at"`
	Duration    int     `json:"duration"`
}

func toRecords(videos []video) []presence.VideoRecord {
	out := make([]presence.VideoRecord, 0, len(videos))
	for _, v := range videos {
		out = append(out, presence.VideoRecord{
			ID:          v.ID,
			Status:      parseStatus(v.Status),
			PublishedAt: parseTime(v.PublishedAt),
		})
	}
	return out
}

func parseStatus(s string) presence.VideoStatus {
	switch s {
	case "upcoming":
		return presence.StatusUpcoming
	case "live":
		return presence.StatusLive
	case "past":
		return presence.StatusPast
	default:
		return presence.StatusOther
	}
}

// parseTime returns nil for absent or malformed timestamps.
func parseTime(s *string) *time.Time {
	if s == nil || *s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, *s)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}
