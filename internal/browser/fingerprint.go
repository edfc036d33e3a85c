package browser

import (
	"math/rand"
)

// Fingerprint is the browser identity presented to a domain. One fingerprint
// per domain session, held stable for the whole crawl run so the traffic
// looks like a single consistent visitor.
type Fingerprint struct {
	UserAgent      string
	ViewportWidth  int
	ViewportHeight int
	DeviceScale    float64
	Locale         string
	TimezoneID     string
	AcceptLanguage string
}

type viewport struct {
	width  int
	height int
	scale  float64
}

// Pools are immutable configuration; selection is a pure function of the
// generator passed in.
type Pools struct {
	UserAgents []string
	Viewports  []viewport
	Locales    []localeProfile
}

type localeProfile struct {
	locale         string
	timezoneID     string
	acceptLanguage string
}

func DefaultPools() Pools {
	return Pools{
		UserAgents: []string{
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
			"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
			"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		},
		Viewports: []viewport{
			{1920, 1080, 1},
			{1680, 1050, 1},
			{1536, 864, 1.25},
			{1440, 900, 2},
			{1366, 768, 1},
		},
		Locales: []localeProfile{
			{"en-US", "America/New_York", "en-US,en;q=0.9"},
			{"en-US", "America/Chicago", "en-US,en;q=0.9"},
			{"en-US", "America/Los_Angeles", "en-US,en;q=0.9"},
			{"en-GB", "Europe/London", "en-GB,en;q=0.9"},
			{"en-CA", "America/Toronto", "en-CA,en;q=0.9"},
		},
	}
}

// Pick draws a fingerprint uniformly at random from the pools.
func (p Pools) Pick(rng *rand.Rand) Fingerprint {
	ua := p.UserAgents[rng.Intn(len(p.UserAgents))]
	vp := p.Viewports[rng.Intn(len(p.Viewports))]
	loc := p.Locales[rng.Intn(len(p.Locales))]
	return Fingerprint{
		UserAgent:      ua,
		ViewportWidth:  vp.width,
		ViewportHeight: vp.height,
		DeviceScale:    vp.scale,
		Locale:         loc.locale,
		TimezoneID:     loc.timezoneID,
		AcceptLanguage: loc.acceptLanguage,
	}
}

// stealthScript masks the usual automation tells before any page script
// runs: navigator.webdriver, empty plugin lists and the headless permissions
// quirk are the first things detection scripts probe.
const stealthScript = `
Object.defineProperty(navigator, 'webdriver', { get: () => undefined });
Object.defineProperty(navigator, 'plugins', {
	get: () => [1, 2, 3, 4, 5],
});
Object.defineProperty(navigator, 'languages', {
	get: () => ['en-US', 'en'],
});
window.chrome = window.chrome || { runtime: {} };
const origQuery = window.navigator.permissions.query;
window.navigator.permissions.query = (parameters) => (
	parameters.name === 'notifications'
		? Promise.resolve({ state: Notification.permission })
		: origQuery(parameters)
);
`
