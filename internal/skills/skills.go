// Package skills provides the built-in tool catalogue: network checks backed
// by nmap and HTTP, DNS lookups, an optional headless browser reader and a
// pair of canned status lookups.
package skills

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"
	"unicode/utf8"

	"deephat/internal/browser"
	"deephat/internal/tools"
)

var errMissingArg = errors.New("missing required argument")

// browseTimeout covers browser.Controller's own 30s navigation bound.
const browseTimeout = 35 * time.Second

// Options wires the external collaborators used by the built-in tools. Zero
// values fall back to real implementations.
type Options struct {
	Runner     CommandRunner
	HTTPClient *http.Client
	Resolver   *net.Resolver
	// Browser enables browse_page when set.
	Browser *browser.Controller
}

// Builtins returns the built-in tools in catalogue order.
func Builtins(opts Options) []tools.Tool {
	scanner := NewScanner(opts.Runner)
	web := NewWebInspector(opts.HTTPClient)
	dns := NewDNSLookup(opts.Resolver)

	list := []tools.Tool{
		tools.Func{
			ToolName:   "port_scan",
			Desc:       "Scan a host for open TCP ports with nmap (ports defaults to 1-1024).",
			ParamNames: []string{"target", "ports"},
			Timeout:    portScanTimeout + scanGrace,
			Fn: func(ctx context.Context, args []string) (string, error) {
				target := tools.Arg(args, 0, "")
				if target == "" {
					return "", errMissingArg
				}
				return scanner.PortScan(ctx, target, tools.Arg(args, 1, defaultPorts))
			},
		},
		tools.Func{
			ToolName:   "vulnerability_assessment",
			Desc:       "Run a basic vulnerability assessment of a host: full port sweep plus risky service checks.",
			ParamNames: []string{"target"},
			Timeout:    assessTimeout + scanGrace,
			Fn: func(ctx context.Context, args []string) (string, error) {
				target := tools.Arg(args, 0, "")
				if target == "" {
					return "", errMissingArg
				}
				return scanner.Assess(ctx, target)
			},
		},
		tools.Func{
			ToolName:   "inspect_web",
			Desc:       "Fetch a URL and report status, server banner, missing security headers, cookie flags and risky forms.",
			ParamNames: []string{"url"},
			Fn: func(ctx context.Context, args []string) (string, error) {
				u := tools.Arg(args, 0, "")
				if u == "" {
					return "", errMissingArg
				}
				return web.Inspect(ctx, u)
			},
		},
		tools.Func{
			ToolName:   "dns_lookup",
			Desc:       "Resolve a hostname to its IP addresses.",
			ParamNames: []string{"host"},
			Fn: func(ctx context.Context, args []string) (string, error) {
				host := tools.Arg(args, 0, "")
				if host == "" {
					return "", errMissingArg
				}
				return dns.Lookup(ctx, host)
			},
		},
		tools.Func{
			ToolName:   "check_system_status",
			Desc:       "Report the operational status of a platform component (api, database, auth, cdn or all).",
			ParamNames: []string{"component"},
			Fn: func(_ context.Context, args []string) (string, error) {
				return SystemStatus(tools.Arg(args, 0, "all"))
			},
		},
		tools.Func{
			ToolName:   "get_security_alerts",
			Desc:       "List current security alerts, optionally filtered by severity (critical, high, medium, low or all).",
			ParamNames: []string{"severity"},
			Fn: func(_ context.Context, args []string) (string, error) {
				return SecurityAlerts(tools.Arg(args, 0, "all"))
			},
		},
	}

	if opts.Browser != nil {
		ctrl := opts.Browser
		list = append(list, tools.Func{
			ToolName:   "browse_page",
			Desc:       "Render a URL in headless Chrome and return its visible text.",
			ParamNames: []string{"url"},
			Timeout:    browseTimeout,
			Fn: func(ctx context.Context, args []string) (string, error) {
				u := tools.Arg(args, 0, "")
				if u == "" {
					return "", errMissingArg
				}
				text, err := ctrl.NavigateAndExtract(ctx, u)
				if err != nil {
					return "", err
				}
				return truncate(text, 4000), nil
			},
		})
	}
	return list
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "\n...(truncated)"
}
