package music

import (
	"fmt"
	"math"
)

// FormatDuration 把秒数格式化为 m:ss，非正数返回空字符串
func FormatDuration(seconds float64) string {
	if seconds <= 0 || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return ""
	}
	total := int(math.Floor(seconds))
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
