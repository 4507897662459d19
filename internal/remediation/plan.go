package remediation

import "strings"

// planIntent is what the free-text resolution plan asks for.
type planIntent struct {
	InfraChange bool // plan calls for an infrastructure mutation
	BrowserTest bool // plan requests user-facing verification
}

// infraMarkers are phrases that indicate an infrastructure change.
var infraMarkers = []string{
	"infra",
	"iam",
	"gcloud",
	"terraform",
	"kubernetes",
	"k8s",
	"firewall",
	"load balancer",
	"instance",
	"service account",
	"role binding",
	"permission",
	"quota",
	"dns",
	"deploy",
	"rollback",
	"scale",
	"config change",
}

// browserMarkers are phrases that request end-to-end, user-facing
// verification.
var browserMarkers = []string{
	"browser",
	"end-to-end",
	"end to end",
	"e2e",
	"user-facing",
	"user facing",
	"ui test",
	"login flow",
	"checkout flow",
	"screenshot",
}

// analyzePlan extracts the plan's intent from its free text. The plan is
// written by the analysis stage upstream, so marker matching is
// case-insensitive substring search over the whole document.
func analyzePlan(plan string) planIntent {
	lower := strings.ToLower(plan)
	return planIntent{
		InfraChange: containsAny(lower, infraMarkers),
		BrowserTest: containsAny(lower, browserMarkers),
	}
}

func containsAny(text string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(text, m) {
			return true
		}
	}
	return false
}
