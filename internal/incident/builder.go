// Package incident validates listing rows into records, filters them by
// type, and mines detail-panel chatter for structured facts.
package incident

import (
	"fmt"
	"strings"

	"github.com/vladse1/CHP/internal/model"
)

// MalformedRecordError reports a row missing mandatory identity fields.
// Such rows are skipped without affecting the rest of the cycle.
type MalformedRecordError struct {
	Missing []string
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("incident: row missing mandatory fields: %s", strings.Join(e.Missing, ", "))
}

// Build assembles a record for one listing row. Time and location are
// mandatory; everything else may be empty.
func Build(center string, fields map[string]string) (*model.IncidentRecord, error) {
	var missing []string
	if strings.TrimSpace(fields[model.FieldTime]) == "" {
		missing = append(missing, model.FieldTime)
	}
	if strings.TrimSpace(fields[model.FieldLocation]) == "" {
		missing = append(missing, model.FieldLocation)
	}
	if len(missing) > 0 {
		return nil, &MalformedRecordError{Missing: missing}
	}

	return &model.IncidentRecord{
		Number:       strings.TrimSpace(fields[model.FieldNumber]),
		Time:         strings.TrimSpace(fields[model.FieldTime]),
		Type:         strings.TrimSpace(fields[model.FieldType]),
		Location:     strings.TrimSpace(fields[model.FieldLocation]),
		LocationDesc: strings.TrimSpace(fields[model.FieldLocationDesc]),
		Area:         strings.TrimSpace(fields[model.FieldArea]),
		CommCenter:   center,
		RawFields:    fields,
	}, nil
}
