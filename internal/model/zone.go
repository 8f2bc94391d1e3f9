package model

import (
	"bytes"
	"encoding/json"
)

// Zone is a support or resistance level with an unnormalized strength.
// The zero Zone is "empty" and serializes as {}.
type Zone struct {
	Level    float64
	Strength float64
}

// IsEmpty reports whether no zone was detected.
func (z Zone) IsEmpty() bool { return z.Level == 0 && z.Strength == 0 }

type zoneJSON struct {
	Level    float64 `json:"level"`
	Strength float64 `json:"strength"`
}

func (z Zone) MarshalJSON() ([]byte, error) {
	if z.IsEmpty() {
		return []byte("{}"), nil
	}
	return json.Marshal(zoneJSON{Level: z.Level, Strength: z.Strength})
}

func (z *Zone) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*z = Zone{}
		return nil
	}
	var zj zoneJSON
	if err := json.Unmarshal(data, &zj); err != nil {
		return err
	}
	*z = Zone{Level: zj.Level, Strength: zj.Strength}
	return nil
}

// LevelRecord is the bookkeeping entry for a zone that persists across ticks.
type LevelRecord struct {
	Level       float64 `json:"level"`
	Touches     int     `json:"touches"`
	LastTouched int     `json:"last_touched_index"`
	IsMajor     bool    `json:"is_major"`
}
