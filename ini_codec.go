package settings

import (
	"math"
	"strconv"
	"strings"
)

// INI values that ini cannot write and read back unchanged are stored as Go
// quoted strings. Backticks are escaped since the ini writer wraps any value
// containing one in triple quotes.
func encodeINIValue(s string) string {
	if !needsINIQuoting(s) {
		return s
	}
	return quoteINIValue(s)
}

func quoteINIValue(s string) string {
	return strings.ReplaceAll(strconv.Quote(s), "`", `\x60`)
}

func needsINIQuoting(s string) bool {
	if s != strings.TrimSpace(s) {
		return true
	}
	if strings.HasPrefix(s, `"`) {
		return true
	}
	return strings.ContainsAny(s, "\n\r`")
}

// decodeINIValue reverses encodeINIValue. Text that is not a valid quoted
// string is returned as is.
func decodeINIValue(s string) string {
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return s
	}
	unquoted, err := strconv.Unquote(s)
	if err != nil {
		return s
	}
	return unquoted
}

// formatMetadataValue writes a metadata entry so parseMetadataValue returns
// the same scalar. Strings that read as numbers or booleans are quoted.
func formatMetadataValue(value any) string {
	switch v := value.(type) {
	case string:
		if _, scalar := parseMetadataScalar(v); scalar {
			return quoteINIValue(v)
		}
		return encodeINIValue(v)
	case float64:
		return formatMetadataFloat(v)
	case float32:
		return formatMetadataFloat(float64(v))
	default:
		return encodeINIValue(FormatSettingValue(value))
	}
}

func formatMetadataFloat(v float64) string {
	text := strconv.FormatFloat(v, 'f', -1, 64)
	if !math.IsNaN(v) && !math.IsInf(v, 0) && !strings.Contains(text, ".") {
		text += ".0"
	}
	return text
}

// parseMetadataValue reads a metadata entry as bool, int, float64 or string.
func parseMetadataValue(text string) any {
	if decoded := decodeINIValue(text); decoded != text {
		return decoded
	}
	if value, scalar := parseMetadataScalar(text); scalar {
		return value
	}
	return text
}

func parseMetadataScalar(text string) (any, bool) {
	switch text {
	case "True", "true":
		return true, true
	case "False", "false":
		return false, true
	}
	if i, err := strconv.Atoi(text); err == nil {
		return i, true
	}
	if !strings.ContainsAny(text, "0123456789") {
		return nil, false
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, false
	}
	return f, true
}
