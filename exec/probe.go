package exec

import "strings"

// interpreterCanary is the message of a native module result when the
// interpreter could not be started.
const interpreterCanary = "The module failed to execute correctly, you probably need to set the interpreter."

// IsMissingInterpreter returns true when the native result shows that the
// remote interpreter is not available, which means the operation should be
// retried with a raw runner.
func IsMissingInterpreter(res *Result) bool {
	if res == nil || res.ReturnCode != exitNotFound {
		return false
	}
	canary := strings.ToLower(interpreterCanary)
	for _, s := range []string{res.Msg, res.ModuleStderr, res.ModuleStdout} {
		if strings.Contains(strings.ToLower(s), canary) {
			return true
		}
	}
	return false
}
