package crawler

import (
	"fmt"
	"strconv"
	"strings"
)

var monthNumbers = map[string]int{
	"january":   1,
	"february":  2,
	"march":     3,
	"april":     4,
	"may":       5,
	"june":      6,
	"july":      7,
	"august":    8,
	"september": 9,
	"october":   10,
	"november":  11,
	"december":  12,
}

// DateKey maps a textual date like "January 1 2019" to the stable MM-DD
// directory key for its record. the year is deliberately not part of the
// key, the on-disk layout is one folder per calendar day.
func DateKey(date string) (string, error) {
	cleaned := strings.ReplaceAll(date, ",", " ")
	fields := strings.Fields(cleaned)
	if len(fields) < 2 {
		return "", fmt.Errorf("unparseable date %q", date)
	}

	month, ok := monthNumbers[strings.ToLower(fields[0])]
	if !ok {
		return "", fmt.Errorf("unknown month in date %q", date)
	}

	day, err := strconv.Atoi(fields[1])
	if err != nil || day < 1 || day > 31 {
		return "", fmt.Errorf("unparseable day in date %q", date)
	}

	return fmt.Sprintf("%02d-%02d", month, day), nil
}
