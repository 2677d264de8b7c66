// Package parser extracts coarse device details from request headers.
package parser

import "strings"

type Device struct {
	OS      string `json:"os"`
	Browser string `json:"browser"`
}

// String renders d as "Browser on OS", or "" when neither is known.
func (d Device) String() string {
	switch {
	case d.Browser == "Unknown" && d.OS == "Unknown":
		return ""
	case d.OS == "Unknown":
		return d.Browser
	case d.Browser == "Unknown":
		return d.OS
	}
	return d.Browser + " on " + d.OS
}

type rule struct {
	name    string
	match   []string
	exclude []string
}

// Order matters: mobile platforms advertise desktop tokens too, and most
// browsers claim to be Safari or Chrome.
var (
	osRules = []rule{
		{name: "iOS", match: []string{"iphone", "ipad", "ipod"}},
		{name: "Android", match: []string{"android"}},
		{name: "Windows", match: []string{"windows"}},
		{name: "macOS", match: []string{"mac os", "macintosh"}},
		{name: "Linux", match: []string{"linux"}},
	}
	browserRules = []rule{
		{name: "Edge", match: []string{"edg/", "edge/"}},
		{name: "Firefox", match: []string{"firefox/", "fxios/"}},
		{name: "Chrome", match: []string{"chrome/", "crios/"}},
		{name: "Safari", match: []string{"safari/"}, exclude: []string{"chrome/", "chromium/"}},
		{name: "curl", match: []string{"curl/"}},
	}
)

func ParseUserAgent(ua string) Device {
	ua = strings.ToLower(ua)
	return Device{OS: first(ua, osRules), Browser: first(ua, browserRules)}
}

func first(ua string, rules []rule) string {
	for _, r := range rules {
		if containsAny(ua, r.match) && !containsAny(ua, r.exclude) {
			return r.name
		}
	}
	return "Unknown"
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
