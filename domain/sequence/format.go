package sequence

import "fmt"

// Format renders PREFIX-YYYY-NNNN. Numbers are padded to four digits and never truncated.
func Format(prefix string, year int, number int64) string {
	return fmt.Sprintf("%s-%04d-%04d", prefix, year, number)
}
