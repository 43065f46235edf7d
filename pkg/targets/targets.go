// Package targets describes the browser baselines every emitted script and
// stylesheet has to support.
package targets

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/rotisserie/eris"
)

// Profile holds the minimum iOS Safari and Android WebView versions. Android
// WebViews are Chromium based so the Android baseline is expressed as a Chrome
// version.
type Profile struct {
	IOS    string
	Chrome string
}

// MinIOS is the oldest iOS release esbuild will target; below it esbuild refuses to lower const and let.
const MinIOS = 11

// Default is the oldest pair of mobile baselines esbuild can lower to without
// rejecting ES2015 syntax.
var Default = Profile{
	IOS:    "11",
	Chrome: "51",
}

// Validate checks that both baselines look like dotted version numbers.
func (p Profile) Validate() error {
	for name, version := range map[string]string{"ios": p.IOS, "chrome": p.Chrome} {
		if version == "" {
			return eris.Errorf("missing %s baseline", name)
		}

		for _, part := range strings.Split(version, ".") {
			if _, err := strconv.Atoi(part); err != nil {
				return eris.Errorf("invalid %s baseline %q", name, version)
			}
		}
	}

	major, _ := strconv.Atoi(strings.SplitN(p.IOS, ".", 2)[0])
	if major < MinIOS {
		return eris.Errorf("ios baseline %s is not supported (minimum is %d)", p.IOS, MinIOS)
	}

	return nil
}

// Engines converts the profile into esbuild engine constraints.
func (p Profile) Engines() []api.Engine {
	return []api.Engine{
		{Name: api.EngineIOS, Version: p.IOS},
		{Name: api.EngineChrome, Version: p.Chrome},
	}
}

func (p Profile) String() string {
	return "ios" + p.IOS + ",chrome" + p.Chrome
}

// FormatMessages renders esbuild diagnostics as "file:line:col: text" lines
func FormatMessages(msgs []api.Message) string {
	lines := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		if msg.Location != nil {
			lines = append(lines, fmt.Sprintf("%s:%d:%d: %s", msg.Location.File, msg.Location.Line, msg.Location.Column, msg.Text))
		} else {
			lines = append(lines, msg.Text)
		}
	}

	return strings.Join(lines, "\n")
}
