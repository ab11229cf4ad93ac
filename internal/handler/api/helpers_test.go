package api

import (
	"fmt"
	"sort"
	"strings"
)

func sprintf(format string, a ...interface{}) string { return fmt.Sprintf(format, a...) }

// trueKeys returns flagged keys in chronological order.
func trueKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k, v := range m {
		if v {
			out = append(out, k)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if len(out[i]) != len(out[j]) {
			return len(out[i]) < len(out[j])
		}
		return out[i] < out[j]
	})
	return out
}

func tooManyPoints(n int) string {
	var b strings.Builder
	b.WriteString(`{"score_data": {`)
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(",")
		}
		fmt.Fprintf(&b, `"%d": 1`, i*1000)
	}
	b.WriteString(`}}`)
	return b.String()
}
