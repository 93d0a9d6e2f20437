package skills

import (
	"fmt"
	"strings"
)

// Status fixtures back the demo status tools until a monitoring feed is
// wired in.
var componentStatus = []struct {
	name, status string
}{
	{"api", "API gateway: operational (p95 latency 120ms, error rate 0.1%)"},
	{"database", "Database cluster: operational (primary healthy, replication lag 0.4s)"},
	{"auth", "Auth service: degraded (elevated login latency under investigation)"},
	{"cdn", "CDN: operational (all edge locations healthy)"},
}

var securityAlerts = []struct {
	severity, text string
}{
	{"critical", "Multiple failed SSH logins from 203.0.113.45 against bastion-01"},
	{"high", "Outdated OpenSSL detected on web-03"},
	{"medium", "TLS certificate for api.example.com expires in 14 days"},
	{"low", "Unused IAM access key older than 90 days"},
}

// SystemStatus reports one component, or every component for "all".
func SystemStatus(component string) (string, error) {
	component = strings.ToLower(strings.TrimSpace(component))
	if component == "" || component == "all" {
		lines := make([]string, 0, len(componentStatus))
		for _, c := range componentStatus {
			lines = append(lines, c.status)
		}
		return strings.Join(lines, "\n"), nil
	}

	names := make([]string, 0, len(componentStatus))
	for _, c := range componentStatus {
		if c.name == component {
			return c.status, nil
		}
		names = append(names, c.name)
	}
	return "", fmt.Errorf("unknown component %q (known: %s)", component, strings.Join(names, ", "))
}

// SecurityAlerts lists alerts of the given severity, or all of them.
func SecurityAlerts(severity string) (string, error) {
	severity = strings.ToLower(strings.TrimSpace(severity))
	all := severity == "" || severity == "all"
	switch severity {
	case "", "all", "critical", "high", "medium", "low":
	default:
		return "", fmt.Errorf("unknown severity %q", severity)
	}

	var lines []string
	for _, a := range securityAlerts {
		if all || a.severity == severity {
			lines = append(lines, fmt.Sprintf("[%s] %s", strings.ToUpper(a.severity), a.text))
		}
	}
	if len(lines) == 0 {
		return fmt.Sprintf("No %s security alerts.", severity), nil
	}
	return strings.Join(lines, "\n"), nil
}
