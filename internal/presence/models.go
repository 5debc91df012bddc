package presence

import (
	"encoding/json"
	"fmt"
	"time"
)

// VideoStatus is the upstream lifecycle status of a video.
type VideoStatus string

const (
	StatusUpcoming VideoStatus = "upcoming"
	StatusLive     VideoStatus = "live"
	StatusPast     VideoStatus = "past"
	StatusOther    VideoStatus = "other"
)

// VideoRecord is one video as reported by the video source.
// PublishedAt is nil for videos that are not yet published or carry a malformed timestamp.
type VideoRecord struct {
	ID          string
	Status      VideoStatus
	PublishedAt *time.Time
}

// State is the presence of the tracked channel. It is one of Live, NotLive or Unknown;
// the set is closed.
type State interface {
	isState()
	// Kind returns a short label for logs and metrics.
	Kind() string
}

// Live means a video is currently broadcasting.
type Live struct {
	VideoID string
}

// NotLive means nothing is broadcasting; LastLive is the publish time of the latest past stream.
type NotLive struct {
	LastLive time.Time
}

// Unknown means presence could not be derived from the available records.
type Unknown struct{}

func (Live) isState()    {}
func (NotLive) isState() {}
func (Unknown) isState() {}

func (Live) Kind() string    { return "live" }
func (NotLive) Kind() string { return "not_live" }
func (Unknown) Kind() string { return "unknown" }

// Kinds lists every State kind, in a stable order.
var Kinds = []string{Live{}.Kind(), NotLive{}.Kind(), Unknown{}.Kind()}

// Entry is a state together with the time it was computed.
type Entry struct {
	State      State
	ComputedAt time.Time
}

type liveJSON struct {
	VideoID string `json:"video_id"`
}

type notLiveJSON struct {
	LastLive time.Time `json:"last_live"`
}

// MarshalState encodes s externally tagged:
// {"Live":{"video_id":..}}, {"NotLive":{"last_live":..}} or "Unknown".
func MarshalState(s State) ([]byte, error) {
	switch v := s.(type) {
	case Live:
		return json.Marshal(map[string]liveJSON{"Live": {VideoID: v.VideoID}})
	case NotLive:
		return json.Marshal(map[string]notLiveJSON{"NotLive": {LastLive: v.LastLive.UTC()}})
	case Unknown, nil:
		return json.Marshal("Unknown")
	default:
		return nil, fmt.Errorf("presence: unhandled state %T", s)
	}
}

// UnmarshalState decodes the encoding produced by MarshalState.
func UnmarshalState(data []byte) (State, error) {
	var tag string
	if err := json.Unmarshal(data, &tag); err == nil {
		if tag == "Unknown" {
			return Unknown{}, nil
		}
		return nil, fmt.Errorf("presence: unknown state tag %q", tag)
	}

	var obj struct {
		Live    *liveJSON    `json:"Live"`
		NotLive *notLiveJSON `json:"NotLive"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("presence: decode state: %w", err)
	}
	switch {
	case obj.Live != nil:
		return Live{VideoID: obj.Live.VideoID}, nil
	case obj.NotLive != nil:
		return NotLive{LastLive: obj.NotLive.LastLive}, nil
	default:
		return nil, fmt.Errorf("presence: empty state object")
	}
}

// DataAttr renders s in the compact form used by the page's data-state attribute.
func DataAttr(s State) string {
	switch v := s.(type) {
	case Live:
		return "l " + v.VideoID
	case NotLive:
		return "nl " + v.LastLive.UTC().Format(time.RFC3339)
	default:
		return "-"
	}
}
