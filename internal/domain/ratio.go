package domain

import (
	"encoding/json"
	"math"
)

// Ratio is a kill/death ratio. encoding/json rejects IEEE infinities, so the
// "no deaths" case marshals as the string "Infinity" and round-trips back.
type Ratio float64

// KD applies the ratio convention used everywhere in this system:
// deaths > 0 -> kills/deaths; kills > 0 -> +Inf; otherwise 0.
func KD(kills, deaths int) Ratio {
	if deaths > 0 {
		return Ratio(float64(kills) / float64(deaths))
	}
	if kills > 0 {
		return Ratio(math.Inf(1))
	}
	return 0
}

func (r Ratio) IsInf() bool {
	return math.IsInf(float64(r), 1)
}

func (r Ratio) MarshalJSON() ([]byte, error) {
	if r.IsInf() {
		return []byte(`"Infinity"`), nil
	}
	return json.Marshal(float64(r))
}

func (r *Ratio) UnmarshalJSON(data []byte) error {
	if string(data) == `"Infinity"` {
		*r = Ratio(math.Inf(1))
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*r = Ratio(f)
	return nil
}
