package ui

import (
	"os/exec"
	"runtime"
	"strings"
)

// Notify raises an OS notification for due watch checkpoints. macOS only;
// elsewhere it is a no-op, and delivery failures are ignored.
func Notify(title, message string) {
	if runtime.GOOS != "darwin" {
		return
	}
	script := `display notification "` + quoteAppleScript(message) + `" with title "` + quoteAppleScript(title) + `"`
	_ = exec.Command("osascript", "-e", script).Run()
}

var appleScriptQuoter = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

func quoteAppleScript(s string) string {
	return appleScriptQuoter.Replace(s)
}
