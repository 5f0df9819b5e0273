package remotefs

import (
	"strconv"
	"strings"

	"github.com/o0-o/posix/exec"
)

// NormalizeContent turns content given as a string or a sequence of
// strings and numbers into its lines and the newline terminated text.
func NormalizeContent(content any) ([]string, string, error) {
	var lines []string
	switch c := content.(type) {
	case string:
		lines = SplitLines(c)
		if strings.HasSuffix(c, "\n") {
			return lines, c, nil
		}
		return lines, c + "\n", nil
	case []string:
		lines = append([]string{}, c...)
	case []any:
		lines = make([]string, 0, len(c))
		for _, v := range c {
			s, err := lineString(v)
			if err != nil {
				return nil, "", err
			}
			lines = append(lines, s)
		}
	default:
		return nil, "", exec.ErrValidation.Wrapf("content must be a string or a list of strings, got %T", content)
	}
	return lines, strings.Join(lines, "\n") + "\n", nil
}

func lineString(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case int:
		return strconv.Itoa(x), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case uint64:
		return strconv.FormatUint(x, 10), nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	default:
		return "", exec.ErrValidation.Wrapf("content lines must be strings or numbers, got %T", v)
	}
}
