package crawler

import (
	"encoding/csv"
	"fmt"
	"os"
	"strings"
)

// InputRecord is one row of the birthday target list. row order defines
// processing order and progress percentage.
type InputRecord struct {
	Date    string
	Url     string
	Name    string
	Caption string
	Year    string
	Image   string
}

// ReadInput parses the target csv (columns Date,URL,Name,Caption,Year,Image
// with a header row).
func ReadInput(path string) ([]InputRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = 6

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	var records []InputRecord
	for i, row := range rows {
		if i == 0 && strings.EqualFold(strings.TrimSpace(row[0]), "date") {
			continue
		}
		records = append(records, InputRecord{
			Date:    strings.TrimSpace(row[0]),
			Url:     strings.TrimSpace(row[1]),
			Name:    strings.TrimSpace(row[2]),
			Caption: strings.TrimSpace(row[3]),
			Year:    strings.TrimSpace(row[4]),
			Image:   strings.TrimSpace(row[5]),
		})
	}
	return records, nil
}
