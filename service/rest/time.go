package rest

import (
	"bytes"
	"time"

	"GProject/tools/errs"
)

// The Spring gateway serializes LocalDateTime without a zone; accept both
// that and RFC3339.
var wireTimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

// ParseWireTime parses a gateway timestamp string.
func ParseWireTime(s string) (time.Time, error) {
	for _, layout := range wireTimeLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, errs.ErrParse.WrapMsg("timestamp", "value", s)
}

// Timestamp is a time.Time that unmarshals the gateway's lenient wire
// formats. Marshaling is inherited from time.Time (RFC3339).
type Timestamp struct {
	time.Time
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	ts, err := ParseWireTime(string(b))
	if err != nil {
		return err
	}
	t.Time = ts
	return nil
}
