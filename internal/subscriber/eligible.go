package subscriber

import "github.com/chainstatus/statuspage/internal/status"

// Eligible reports whether sub should be notified about an incident of the
// given severity affecting serviceIDs.
func Eligible(sub *Subscriber, severity status.Severity, serviceIDs []string) bool {
	if sub == nil || !sub.Active() {
		return false
	}
	if sub.NotifyAll {
		return true
	}
	if sub.NotifyMajor && severity != status.SeverityMinor {
		return true
	}
	for _, want := range sub.NotifyServices {
		for _, id := range serviceIDs {
			if want == id {
				return true
			}
		}
	}
	return false
}
