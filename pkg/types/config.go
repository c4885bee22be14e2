// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"fmt"
	"time"
)

// InvestorProfile is the investor category declared at compliance gates.
type InvestorProfile string

const (
	ProfileUnknown       InvestorProfile = "unknown"
	ProfileRetail        InvestorProfile = "retail"
	ProfileProfessional  InvestorProfile = "professional"
	ProfileInstitutional InvestorProfile = "institutional"
)

// ParseProfile maps a config string to an InvestorProfile. The empty string
// is treated as unknown.
func ParseProfile(s string) (InvestorProfile, error) {
	switch p := InvestorProfile(s); p {
	case "":
		return ProfileUnknown, nil
	case ProfileUnknown, ProfileRetail, ProfileProfessional, ProfileInstitutional:
		return p, nil
	}
	return "", fmt.Errorf("unknown investor profile %q (want unknown, retail, professional or institutional)", s)
}

// LinkStrategy selects how fallback candidate links are chosen.
type LinkStrategy string

const (
	// LinkScored ranks every anchor by the additive score.
	LinkScored LinkStrategy = "scored"

	// LinkPDFFirst returns .pdf hrefs if any exist, otherwise keyword hrefs.
	LinkPDFFirst LinkStrategy = "pdf-first"
)

// BrowserConfig holds settings for the browser session.
type BrowserConfig struct {
	Headless       bool   `json:"headless" yaml:"headless" mapstructure:"headless"`
	UserAgent      string `json:"user_agent" yaml:"user_agent" mapstructure:"user_agent"`
	ViewportWidth  int    `json:"viewport_width" yaml:"viewport_width" mapstructure:"viewport_width"`
	ViewportHeight int    `json:"viewport_height" yaml:"viewport_height" mapstructure:"viewport_height"`

	// ExecPath overrides the Chrome binary. Empty uses the chromedp lookup.
	ExecPath string `json:"exec_path,omitempty" yaml:"exec_path,omitempty" mapstructure:"exec_path"`
}

// Timeouts bounds the short interaction waits.
type Timeouts struct {
	// Click bounds a single matcher click.
	Click time.Duration `json:"click" yaml:"click" mapstructure:"click"`

	// Download bounds the wait for a download event after a click.
	Download time.Duration `json:"download" yaml:"download" mapstructure:"download"`
}

// Pauses are the fixed settle delays between pipeline steps.
type Pauses struct {
	AfterLoad    time.Duration `json:"after_load" yaml:"after_load" mapstructure:"after_load"`
	ScrollStep   time.Duration `json:"scroll_step" yaml:"scroll_step" mapstructure:"scroll_step"`
	ScrollSettle time.Duration `json:"scroll_settle" yaml:"scroll_settle" mapstructure:"scroll_settle"`
	Interstitial time.Duration `json:"interstitial" yaml:"interstitial" mapstructure:"interstitial"`
	GateSettle   time.Duration `json:"gate_settle" yaml:"gate_settle" mapstructure:"gate_settle"`
	Subpage      time.Duration `json:"subpage" yaml:"subpage" mapstructure:"subpage"`
}

// InterstitialRule describes a redirect page that must be clicked through.
type InterstitialRule struct {
	// Domain is matched as a substring of the current URL.
	Domain string `json:"domain" yaml:"domain" mapstructure:"domain"`

	// Keyword must appear in the visible page text.
	Keyword string `json:"keyword" yaml:"keyword" mapstructure:"keyword"`

	// Continue lists the phrases that move past the page.
	Continue []string `json:"continue" yaml:"continue" mapstructure:"continue"`

	// Tag is the action recorded when the rule fires.
	Tag string `json:"tag" yaml:"tag" mapstructure:"tag"`
}

// Policy holds the heuristic keyword and selector lists. The lists are
// ordered; earlier entries are tried first.
type Policy struct {
	CookieTexts       []string                     `json:"cookie_texts" yaml:"cookie_texts" mapstructure:"cookie_texts"`
	CloseTexts        []string                     `json:"close_texts" yaml:"close_texts" mapstructure:"close_texts"`
	CloseSelectors    []string                     `json:"close_selectors" yaml:"close_selectors" mapstructure:"close_selectors"`
	GateHints         []string                     `json:"gate_hints" yaml:"gate_hints" mapstructure:"gate_hints"`
	ProfileLabels     map[InvestorProfile][]string `json:"profile_labels" yaml:"profile_labels" mapstructure:"profile_labels"`
	GateContinueTexts []string                     `json:"gate_continue_texts" yaml:"gate_continue_texts" mapstructure:"gate_continue_texts"`
	DownloadHints     []string                     `json:"download_hints" yaml:"download_hints" mapstructure:"download_hints"`
	FallbackKeywords  []string                     `json:"fallback_keywords" yaml:"fallback_keywords" mapstructure:"fallback_keywords"`
	InterstitialRules []InterstitialRule           `json:"interstitial_rules" yaml:"interstitial_rules" mapstructure:"interstitial_rules"`
}

// DefaultPolicy returns the built-in keyword lists.
func DefaultPolicy() Policy {
	return Policy{
		CookieTexts: []string{
			"Accept all", "Accept", "I agree", "Agree", "OK", "Okay",
			"Allow all", "Got it", "Accept cookies", "Allow cookies",
		},
		CloseTexts: []string{"Close", "Dismiss", "No thanks", "Not now"},
		CloseSelectors: []string{
			"button[aria-label='Close']",
			"button[aria-label='close']",
			"button[class*='close']",
			".close-icon",
			".modal-close",
		},
		GateHints: []string{
			"financial intermediary", "professional investor", "institutional investor",
			"retail investor", "accredited", "qualified investor", "i certify",
			"jurisdiction", "investor type", "client type",
		},
		ProfileLabels: map[InvestorProfile][]string{
			ProfileRetail:        {"Retail", "Individual", "Private investor"},
			ProfileProfessional:  {"Professional", "Qualified", "Professional investor"},
			ProfileInstitutional: {"Institutional", "Financial intermediary", "Intermediary", "Institutional investor"},
		},
		GateContinueTexts: []string{"Continue", "Enter", "Proceed", "Confirm", "I agree", "Agree"},
		DownloadHints: []string{
			"download full pdf", "download pdf", "download", "pdf",
			"full report", "report pdf", "outlook", "view pdf", "download report",
		},
		FallbackKeywords: []string{"pdf", "download", "report", "outlook", "publication"},
		InterstitialRules: []InterstitialRule{
			{
				Domain:   "linkedin.com",
				Keyword:  "leaving",
				Continue: []string{"Continue", "Go to link", "Proceed"},
				Tag:      "handled_linkedin_redirect",
			},
		},
	}
}

// HarvestConfig holds every setting for a harvest run. It is fixed at start
// and passed to the orchestrator by value.
type HarvestConfig struct {
	Browser BrowserConfig `json:"browser" yaml:"browser" mapstructure:"browser"`

	// Timeout bounds page navigation.
	Timeout  time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`
	Timeouts Timeouts      `json:"timeouts" yaml:"timeouts" mapstructure:"timeouts"`
	Pauses   Pauses        `json:"pauses" yaml:"pauses" mapstructure:"pauses"`

	Profile InvestorProfile `json:"profile" yaml:"profile" mapstructure:"profile"`

	DownloadDir   string `json:"download_dir" yaml:"download_dir" mapstructure:"download_dir"`
	ScreenshotDir string `json:"screenshot_dir" yaml:"screenshot_dir" mapstructure:"screenshot_dir"`
	ReportDir     string `json:"report_dir" yaml:"report_dir" mapstructure:"report_dir"`

	// MaxCandidates caps the fallback link list (default 10).
	MaxCandidates int `json:"max_candidates" yaml:"max_candidates" mapstructure:"max_candidates"`

	// MinLinkScore drops scored links below this value (default 1).
	MinLinkScore int          `json:"min_link_score" yaml:"min_link_score" mapstructure:"min_link_score"`
	LinkStrategy LinkStrategy `json:"link_strategy" yaml:"link_strategy" mapstructure:"link_strategy"`

	// DirectFetch enables fetching PDF URLs over HTTP when no download event fires.
	DirectFetch bool `json:"direct_fetch" yaml:"direct_fetch" mapstructure:"direct_fetch"`

	// FileSuffix is inserted between the institution slug and the date.
	FileSuffix string `json:"file_suffix" yaml:"file_suffix" mapstructure:"file_suffix"`

	// TaskDelay is the minimum spacing between consecutive tasks.
	TaskDelay time.Duration `json:"task_delay" yaml:"task_delay" mapstructure:"task_delay"`

	Policy Policy `json:"policy" yaml:"policy" mapstructure:"policy"`
}

// DefaultUserAgent is sent by the browser and the direct fetcher.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// DefaultHarvestConfig returns the configuration used when nothing is overridden.
func DefaultHarvestConfig() HarvestConfig {
	return HarvestConfig{
		Browser: BrowserConfig{
			Headless:       true,
			UserAgent:      DefaultUserAgent,
			ViewportWidth:  1280,
			ViewportHeight: 720,
		},
		Timeout: 45 * time.Second,
		Timeouts: Timeouts{
			Click:    1500 * time.Millisecond,
			Download: 3 * time.Second,
		},
		Pauses: Pauses{
			AfterLoad:    1 * time.Second,
			ScrollStep:   500 * time.Millisecond,
			ScrollSettle: 1 * time.Second,
			Interstitial: 2 * time.Second,
			GateSettle:   700 * time.Millisecond,
			Subpage:      800 * time.Millisecond,
		},
		Profile:       ProfileUnknown,
		DownloadDir:   "downloads",
		ScreenshotDir: "logs/screenshots",
		ReportDir:     "downloads",
		MaxCandidates: 10,
		MinLinkScore:  1,
		LinkStrategy:  LinkScored,
		DirectFetch:   true,
		FileSuffix:    "outlook",
		Policy:        DefaultPolicy(),
	}
}

// Validate checks the settings that would otherwise fail late in a run.
func (c HarvestConfig) Validate() error {
	if _, err := ParseProfile(string(c.Profile)); err != nil {
		return err
	}
	switch c.LinkStrategy {
	case LinkScored, LinkPDFFirst:
	default:
		return fmt.Errorf("unknown link strategy %q (want %s or %s)", c.LinkStrategy, LinkScored, LinkPDFFirst)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %v", c.Timeout)
	}
	if c.Timeouts.Click <= 0 || c.Timeouts.Download <= 0 {
		return fmt.Errorf("click and download timeouts must be positive")
	}
	if c.MaxCandidates <= 0 {
		return fmt.Errorf("max candidates must be positive, got %d", c.MaxCandidates)
	}
	if c.DownloadDir == "" {
		return fmt.Errorf("download directory is required")
	}
	return nil
}
