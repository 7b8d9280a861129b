package encoder

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/jittakal/gctrace/pkg/event"
)

// fieldsJSON renders the decoded fields of a record as a JSON object.
// Pointers are hex strings, everything else a number.
func fieldsJSON(record event.Record) (string, error) {
	fields := make(map[string]any, len(record.Fields))
	for _, f := range record.Fields {
		if f.Pointer {
			fields[f.Name] = "0x" + strconv.FormatUint(f.Value, 16)
		} else {
			fields[f.Name] = f.Value
		}
	}
	b, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("failed to marshal fields: %w", err)
	}
	return string(b), nil
}

// exportedAt returns the export time of a record, defaulting to now.
func exportedAt(record event.Record) time.Time {
	if record.ExportedAt.IsZero() {
		return time.Now().UTC()
	}
	return record.ExportedAt
}
