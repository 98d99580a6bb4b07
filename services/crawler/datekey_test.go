package crawler

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDateKey(t *testing.T) {
	testCases := []struct {
		date     string
		expected string
	}{
		{"January 1 2019", "01-01"},
		{"December 31 2020", "12-31"},
		{"March 5 2021", "03-05"},
		{"march 5 2021", "03-05"},
		{"July 4, 2022", "07-04"},
		{"September 30", "09-30"},
	}

	for _, test := range testCases {
		key, err := DateKey(test.date)
		if err != nil {
			t.Fatal(err)
		}
		require.Equal(t, test.expected, key)

		// deterministic
		again, err := DateKey(test.date)
		if err != nil {
			t.Fatal(err)
		}
		require.Equal(t, key, again)
	}
}

func TestDateKeyRejectsGarbage(t *testing.T) {
	for _, date := range []string{"", "January", "Smarch 5 2021", "January fifth 2021", "March 32 2021"} {
		_, err := DateKey(date)
		require.Error(t, err, "date %q should not parse", date)
	}
}
