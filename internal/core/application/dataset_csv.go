package application

import (
	"encoding/csv"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/retrofund/retrofund/internal/core/domain"
)

const applicationIdColumn = "applicationId"

// parseDatasetRows turns raw delimited text into dataset rows. Validation
// is exhaustive rather than fail-fast: every header and row problem is
// collected so the admin can fix the file in a single pass. Row numbers
// are 1-based with the header as row 1. A non-empty error list means the
// returned rows must be discarded.
func parseDatasetRows(
	datasetId, csvText string, roundApplicationIds map[string]struct{},
) ([]domain.CustomDatasetRow, []string) {
	reader := csv.NewReader(strings.NewReader(csvText))
	records, err := reader.ReadAll()
	if err != nil {
		return nil, []string{fmt.Sprintf("invalid CSV: %s", err)}
	}
	if len(records) <= 0 {
		return nil, []string{"CSV is empty, a header row is required"}
	}

	header := records[0]
	idIndex := -1
	for i, name := range header {
		if strings.TrimSpace(name) == applicationIdColumn {
			idIndex = i
			break
		}
	}
	if idIndex < 0 {
		return nil, []string{fmt.Sprintf("missing required column '%s'", applicationIdColumn)}
	}

	errs := make([]string, 0)
	if len(header)-1 > domain.MaxDatasetFields {
		errs = append(errs, fmt.Sprintf(
			"datasets support at most %d value columns, got %d",
			domain.MaxDatasetFields, len(header)-1,
		))
	}

	rows := make([]domain.CustomDatasetRow, 0, len(records)-1)
	seen := make(map[string]struct{})
	for i, record := range records[1:] {
		rowNum := i + 2

		appId := strings.TrimSpace(record[idIndex])
		// Only the canonical 36-character form is accepted; uuid.Parse alone
		// also admits braced, urn-prefixed and bare-hex spellings that would
		// never match a stored application id.
		if _, err := uuid.Parse(appId); err != nil || len(appId) != 36 {
			errs = append(errs, fmt.Sprintf("Row %d: invalid application ID", rowNum))
			continue
		}
		if _, ok := roundApplicationIds[appId]; !ok {
			errs = append(errs, fmt.Sprintf(
				"Row %d: Application with ID '%s' not found", rowNum, appId,
			))
			continue
		}
		if _, ok := seen[appId]; ok {
			errs = append(errs, fmt.Sprintf("Row %d: duplicate application ID", rowNum))
			continue
		}
		seen[appId] = struct{}{}

		values := make(map[string]string)
		for col, name := range header {
			if col == idIndex {
				continue
			}
			values[strings.TrimSpace(name)] = record[col]
		}
		rows = append(rows, domain.CustomDatasetRow{
			DatasetId:     datasetId,
			ApplicationId: appId,
			Values:        values,
		})
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return rows, nil
}
