package util

import "fmt"

// FormatMultiError flattens the component errors of a multierror into one loggable string
func FormatMultiError(merrs []error) string {
	var msg = ""
	for i := 0; i < len(merrs); i++ {
		msg += fmt.Sprintf("%+v\n", merrs[i])
	}
	return msg
}
