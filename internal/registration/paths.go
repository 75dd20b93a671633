package registration

import (
	"fmt"
	"path/filepath"
)

// Supported browsers.
const (
	BrowserChrome   = "chrome"
	BrowserChromium = "chromium"
	BrowserEdge     = "edge"
	BrowserBrave    = "brave"
)

var linuxDirs = map[string][]string{
	BrowserChrome:   {".config", "google-chrome"},
	BrowserChromium: {".config", "chromium"},
	BrowserEdge:     {".config", "microsoft-edge"},
	BrowserBrave:    {".config", "BraveSoftware", "Brave-Browser"},
}

var darwinDirs = map[string][]string{
	BrowserChrome:   {"Library", "Application Support", "Google", "Chrome"},
	BrowserChromium: {"Library", "Application Support", "Chromium"},
	BrowserEdge:     {"Library", "Application Support", "Microsoft Edge"},
	BrowserBrave:    {"Library", "Application Support", "BraveSoftware", "Brave-Browser"},
}

var registryRoots = map[string]string{
	BrowserChrome:   `Software\Google\Chrome\NativeMessagingHosts`,
	BrowserChromium: `Software\Chromium\NativeMessagingHosts`,
	BrowserEdge:     `Software\Microsoft\Edge\NativeMessagingHosts`,
	BrowserBrave:    `Software\BraveSoftware\Brave-Browser\NativeMessagingHosts`,
}

func normalizeBrowser(browser string) string {
	if browser == "" {
		return BrowserChrome
	}
	return browser
}

// ManifestDir returns the per-user manifest directory for browser on goos.
func ManifestDir(goos, home, browser string) (string, error) {
	browser = normalizeBrowser(browser)
	var table map[string][]string
	switch goos {
	case "linux", "freebsd", "openbsd", "netbsd":
		table = linuxDirs
	case "darwin":
		table = darwinDirs
	default:
		return "", fmt.Errorf("no manifest directory for %s", goos)
	}
	parts, ok := table[browser]
	if !ok {
		return "", fmt.Errorf("unsupported browser: %s", browser)
	}
	elems := append([]string{home}, parts...)
	elems = append(elems, "NativeMessagingHosts")
	return filepath.Join(elems...), nil
}

// RegistryRoot returns the HKCU-relative key holding host registrations.
func RegistryRoot(browser string) (string, error) {
	browser = normalizeBrowser(browser)
	root, ok := registryRoots[browser]
	if !ok {
		return "", fmt.Errorf("unsupported browser: %s", browser)
	}
	return root, nil
}
