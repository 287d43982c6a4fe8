package predict

import (
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// FormatLevel prints a level the way a float literal reads: 6.5, 7.0, 1e+16.
func FormatLevel(level float64) string {
	abs := math.Abs(level)
	if abs != 0 && (abs < 1e-4 || abs >= 1e16) {
		return strconv.FormatFloat(level, 'e', -1, 64)
	}
	s := strconv.FormatFloat(level, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// FormatSalary prints v with thousands separators and two decimals.
func FormatSalary(v float64) string {
	return message.NewPrinter(language.English).Sprintf("%.2f", v)
}

// FormatResult is the line printed by the predict command.
func FormatResult(level, salary float64) string {
	return "Predicted Salary for Level " + FormatLevel(level) + ": $" + FormatSalary(salary)
}
