package oauth

import (
	"os/exec"
	"runtime"
)

// openBrowser launches the platform's default browser on url. Failures are
// non-fatal to the setup flow; the caller logs and tells the user to open
// the URL manually.
func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	case "darwin":
		cmd = exec.Command("open", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Start()
}
