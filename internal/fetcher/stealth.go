package fetcher

import (
	"fmt"
	"math/rand"
)

// Fingerprint describes the desktop identity presented when evasion is on.
type Fingerprint struct {
	UserAgent string

	// Viewport dimensions, also used for the launch window size.
	ViewportWidth  int
	ViewportHeight int

	// Language override (e.g., "en-US")
	Language string

	// Platform override (e.g., "Win32", "MacIntel", "Linux x86_64")
	Platform string

	// Hardware concurrency (number of CPU cores to report)
	HardwareConcurrency int

	// DeviceMemory (GB of RAM to report)
	DeviceMemory int
}

// NewFingerprint returns a fingerprint for the given UA and viewport. The
// reported core count is randomized per session.
func NewFingerprint(userAgent string, width, height int) *Fingerprint {
	if width <= 0 || height <= 0 {
		width, height = 1366, 768
	}
	return &Fingerprint{
		UserAgent:           userAgent,
		ViewportWidth:       width,
		ViewportHeight:      height,
		Language:            "en-US",
		Platform:            "Win32",
		HardwareConcurrency: 4 + rand.Intn(13), // 4-16 cores
		DeviceMemory:        8,
	}
}

// WindowSize returns the launcher window-size flag value.
func (f *Fingerprint) WindowSize() string {
	return fmt.Sprintf("%d,%d", f.ViewportWidth, f.ViewportHeight)
}

// JS returns the navigator overrides injected before any page script runs.
// It complements stealth.JS, which already patches webdriver and plugins.
func (f *Fingerprint) JS() string {
	return fmt.Sprintf(`(() => {
Object.defineProperty(navigator, 'platform', { get: () => '%s' });
Object.defineProperty(navigator, 'language', { get: () => '%s' });
Object.defineProperty(navigator, 'languages', { get: () => ['%s', 'en'] });
Object.defineProperty(navigator, 'hardwareConcurrency', { get: () => %d });
Object.defineProperty(navigator, 'deviceMemory', { get: () => %d });
})();`, f.Platform, f.Language, f.Language, f.HardwareConcurrency, f.DeviceMemory)
}
