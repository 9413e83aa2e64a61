package frigate

import (
	"encoding/json"
	"time"

	"github.com/featherwatch/featherwatch/internal/errors"
	"github.com/featherwatch/featherwatch/internal/pipeline"
)

// Object labels treated as bird sightings. Frigate publishes many object
// types on the same topic; everything else is ignored.
var birdLikeLabels = map[string]bool{
	"bird": true,
}

type eventMessage struct {
	Type  string      `json:"type"`
	After eventObject `json:"after"`
}

type eventObject struct {
	ID        string          `json:"id"`
	Label     string          `json:"label"`
	SubLabel  json.RawMessage `json:"sub_label"`
	Camera    string          `json:"camera"`
	TopScore  float64         `json:"top_score"`
	StartTime float64         `json:"start_time"`
}

// DecodeEvent parses a Frigate MQTT event payload. ok is false when the
// payload is valid but not a bird sighting worth processing.
func DecodeEvent(payload []byte) (pipeline.SightingEvent, bool, error) {
	var msg eventMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return pipeline.SightingEvent{}, false, errors.New(err).
			Component("frigate").
			Category(errors.CategoryValidation).
			Context("operation", "decode_event").
			Build()
	}

	obj := msg.After
	if obj.ID == "" || !birdLikeLabels[obj.Label] {
		return pipeline.SightingEvent{}, false, nil
	}

	sec := int64(obj.StartTime)
	nsec := int64((obj.StartTime - float64(sec)) * float64(time.Second))

	return pipeline.SightingEvent{
		EventID:   obj.ID,
		Label:     obj.Label,
		Sublabel:  decodeSubLabel(obj.SubLabel),
		Camera:    obj.Camera,
		Score:     obj.TopScore,
		FrameTime: time.Unix(sec, nsec).UTC(),
	}, true, nil
}

// decodeSubLabel handles the two shapes Frigate emits: a plain string or a
// [name, score] array.
func decodeSubLabel(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err == nil && len(arr) > 0 {
		if err := json.Unmarshal(arr[0], &s); err == nil {
			return s
		}
	}
	return ""
}
