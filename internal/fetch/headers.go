package fetch

// UserAgent is the Chrome-on-macOS profile every plain request presents.
const UserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/141.0.0.0 Safari/537.36"

// BrowserHeaders returns the fixed header set that, together with the
// credential cookie, the origin accepts in place of a real browser. Values
// must stay byte-for-byte identical to the browser profile.
func BrowserHeaders(cookie string) map[string]string {
	return map[string]string{
		"accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8,application/signed-exchange;v=b3;q=0.7",
		"accept-language":           "en-US,en;q=0.9",
		"cache-control":             "no-cache",
		"cookie":                    cookie,
		"pragma":                    "no-cache",
		"priority":                  "u=0, i",
		"sec-ch-ua":                 `"Google Chrome";v="141", "Not?A_Brand";v="8", "Chromium";v="141"`,
		"sec-ch-ua-mobile":          "?0",
		"sec-ch-ua-platform":        `"macOS"`,
		"sec-fetch-dest":            "document",
		"sec-fetch-mode":            "navigate",
		"sec-fetch-site":            "same-origin",
		"sec-fetch-user":            "?1",
		"upgrade-insecure-requests": "1",
		"user-agent":                UserAgent,
	}
}
