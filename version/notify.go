// Package version provides unified mechanisms for application version tracking, update discovery, and compatibility validation.
package version

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
	"github.com/strelay-cli/strelay/color"
	"github.com/strelay-cli/strelay/constant"
	"github.com/strelay-cli/strelay/icon"
	"github.com/strelay-cli/strelay/key"
	"github.com/strelay-cli/strelay/style"
	"github.com/strelay-cli/strelay/util"
)

// Notify displays a terminal alert if a more recent stable application version is available.
// The alert goes to stderr so stdout stays safe for stream bytes.
func Notify() {
	if !viper.GetBool(key.CliVersionCheck) {
		return
	}

	erase := util.PrintErasable(fmt.Sprintf("%s Checking if new version is available...", icon.Get(icon.Progress)))
	version, err := Latest()
	erase()
	if err != nil {
		return
	}

	comp, err := Compare(version, constant.Version)
	if err != nil || comp <= 0 {
		return
	}

	fmt.Fprintf(os.Stderr, `
%s New version is available %s %s
%s

`,
		style.Fg(color.Green)("▇▇▇"),
		style.Bold(version),
		style.Faint(fmt.Sprintf("(You're on %s)", constant.Version)),
		style.Faint("https://github.com/strelay-cli/strelay/releases/tag/v"+version),
	)
}
