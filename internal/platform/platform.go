// Package platform holds the per-advertising-platform data tables used when
// acquiring ad creatives, building prompts and predicting performance.
package platform

import (
	"errors"
	"net/url"
	"strings"
)

type Platform string

const (
	Meta     Platform = "meta"
	TikTok   Platform = "tiktok"
	LinkedIn Platform = "linkedin"
	Google   Platform = "google"
	Reddit   Platform = "reddit"
)

var ErrUnknownPlatform = errors.New("unknown platform")

// VideoStrategy controls how frames are pulled from a video creative.
type VideoStrategy struct {
	FrameCount int
	// Timestamps in seconds from the start of the clip.
	Timestamps []float64
	Quality    string
}

type Config struct {
	DisplayName   string
	PromptContext string

	// AlwaysVideo marks platforms whose ad URLs are video creatives
	// regardless of URL shape.
	AlwaysVideo  bool
	VideoMarkers []string
	Video        VideoStrategy

	// PreviewHosts are share-preview domains that need a longer settle
	// delay and readiness selector before capture.
	PreviewHosts    []string
	PreviewSelector string
}

var commonVideoMarkers = []string{
	"/videos/", "/video/", "/reel", "/watch", "youtu.be", "youtube.com/shorts",
	"v.redd.it", ".mp4", ".mov", ".webm",
}

var configs = map[Platform]Config{
	Meta: {
		DisplayName: "Meta (Facebook/Instagram)",
		PromptContext: "Meta ads appear in fast-scrolling Facebook and Instagram feeds. " +
			"Users expect the landing page to continue the exact visual identity and offer " +
			"they tapped on, and most traffic arrives on mobile.",
		VideoMarkers:    commonVideoMarkers,
		Video:           VideoStrategy{FrameCount: 3, Timestamps: []float64{1, 3, 6}, Quality: "high"},
		PreviewHosts:    []string{"fb.me", "facebook.com/ads/library", "business.facebook.com", "instagram.com/p/"},
		PreviewSelector: "[role=\"main\"]",
	},
	TikTok: {
		DisplayName: "TikTok",
		PromptContext: "TikTok ads are full-screen, sound-on vertical videos with native, creator-style " +
			"energy. Landing pages must load instantly on mobile and keep the informal, authentic tone " +
			"of the video.",
		AlwaysVideo:     true,
		VideoMarkers:    commonVideoMarkers,
		Video:           VideoStrategy{FrameCount: 4, Timestamps: []float64{0.5, 2, 4, 7}, Quality: "high"},
		PreviewHosts:    []string{"ads.tiktok.com", "tiktok.com/view", "vm.tiktok.com"},
		PreviewSelector: "video",
	},
	LinkedIn: {
		DisplayName: "LinkedIn",
		PromptContext: "LinkedIn ads target professionals in a work mindset. Credibility, clear value " +
			"propositions and B2B trust signals matter more than flashy visuals, and desktop traffic is common.",
		VideoMarkers: commonVideoMarkers,
		Video:        VideoStrategy{FrameCount: 2, Timestamps: []float64{1, 4}, Quality: "medium"},
	},
	Google: {
		DisplayName: "Google Ads",
		PromptContext: "Google ads are intent driven. The searcher typed a query, so the landing page " +
			"must answer it immediately, repeat the ad's keywords in the headline and make the next step obvious.",
		VideoMarkers: commonVideoMarkers,
		Video:        VideoStrategy{FrameCount: 2, Timestamps: []float64{1, 5}, Quality: "medium"},
	},
	Reddit: {
		DisplayName: "Reddit",
		PromptContext: "Reddit users are skeptical of advertising and reward authenticity. Ads and landing " +
			"pages that feel transparent, community aware and free of hype convert best.",
		VideoMarkers: commonVideoMarkers,
		Video:        VideoStrategy{FrameCount: 2, Timestamps: []float64{1, 4}, Quality: "medium"},
	},
}

var aliases = map[string]Platform{
	"facebook":   Meta,
	"instagram":  Meta,
	"fb":         Meta,
	"google ads": Google,
	"adwords":    Google,
}

func Parse(s string) (Platform, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	if _, ok := configs[Platform(key)]; ok {
		return Platform(key), nil
	}
	if p, ok := aliases[key]; ok {
		return p, nil
	}
	return "", ErrUnknownPlatform
}

func All() []Platform {
	return []Platform{Meta, TikTok, LinkedIn, Google, Reddit}
}

// Lookup returns the table entry for p, defaulting to Meta.
func Lookup(p Platform) Config {
	if cfg, ok := configs[p]; ok {
		return cfg
	}
	return configs[Meta]
}

func (p Platform) Valid() bool {
	_, ok := configs[p]
	return ok
}

func (p Platform) String() string {
	return string(p)
}

// IsVideoURL reports whether rawURL should go through the video pipeline.
func (p Platform) IsVideoURL(rawURL string) bool {
	cfg := Lookup(p)
	if cfg.AlwaysVideo {
		return true
	}
	lower := strings.ToLower(rawURL)
	for _, m := range cfg.VideoMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}

	u, err := url.Parse(lower)
	if err != nil {
		return false
	}
	for key := range u.Query() {
		if key == "video" || key == "video_id" || key == "v" {
			return true
		}
	}
	for _, seg := range strings.Split(u.Path, "/") {
		if seg == "video" || seg == "videos" {
			return true
		}
	}
	return false
}

// IsPreviewURL reports whether rawURL points at a platform share preview.
func (p Platform) IsPreviewURL(rawURL string) bool {
	lower := strings.ToLower(rawURL)
	for _, h := range Lookup(p).PreviewHosts {
		if strings.Contains(lower, h) {
			return true
		}
	}
	return false
}
