package lineinfile

import "strings"

// goTemplate converts a replacement using \N and \g<name> group references
// into the ${N} and ${name} form understood by regexp.Expand.
func goTemplate(tpl string) string {
	var sb strings.Builder
	for i := 0; i < len(tpl); i++ {
		c := tpl[i]
		if c == '$' {
			sb.WriteString("$$")
			continue
		}
		if c != '\\' || i+1 >= len(tpl) {
			sb.WriteByte(c)
			continue
		}
		next := tpl[i+1]
		switch {
		case next >= '0' && next <= '9':
			j := i + 2
			if j < len(tpl) && tpl[j] >= '0' && tpl[j] <= '9' {
				j++
			}
			sb.WriteString("${" + tpl[i+1:j] + "}")
			i = j - 1
		case next == 'g' && i+2 < len(tpl) && tpl[i+2] == '<':
			end := strings.IndexByte(tpl[i+3:], '>')
			if end < 0 {
				sb.WriteByte(c)
				continue
			}
			sb.WriteString("${" + tpl[i+3:i+3+end] + "}")
			i += 3 + end
		case next == 'n':
			sb.WriteByte('\n')
			i++
		case next == 't':
			sb.WriteByte('\t')
			i++
		case next == '\\':
			sb.WriteByte('\\')
			i++
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}
