package firebolt

import (
	"encoding/json"
	"fmt"
	"time"

	str2duration "github.com/xhit/go-str2duration/v2"
)

// Duration wraps time.Duration for the statistics block of a response.
// Engines report elapsed time as fractional seconds; duration strings such
// as "1m30s" or "2d" are accepted too.
type Duration struct {
	time.Duration
}

// MarshalJSON writes the duration as fractional seconds.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Seconds())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case nil:
		d.Duration = 0
	case float64:
		d.Duration = time.Duration(value * float64(time.Second))
	case string:
		parsed, err := str2duration.ParseDuration(value)
		if err != nil {
			return err
		}
		d.Duration = parsed
	default:
		return fmt.Errorf("invalid duration %s", data)
	}
	return nil
}
