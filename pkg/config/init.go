package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is looked up in the working directory when no path is given.
const DefaultConfigFile = "toastblog.json"

// DefaultConfiguration returns a fresh configuration holding the built-in defaults.
func DefaultConfiguration() *Configuration {
	return &Configuration{
		RootDir:            ".",
		AppsDir:            "client/apps",
		ThemesDir:          "client/themes",
		ContentDir:         "content",
		DevOutput:          "build/dev",
		ProdOutput:         "build/prod",
		DevRelativeOutput:  "/",
		ProdRelativeOutput: "/",
		ProdAssetsURL:      "",
		DevAssetsURL:       "",
		HotPort:            8080,
		Stage:              "development",
		Theme:              "pure",
		BuildSuffix:        "_bundle.js",
		IgnoreFiles:        []string{".DS_Store", "Thumbs.db", "*.swp", "*~"},
		Site: Site{
			Title:                  "Speak Easy",
			Subtitle:               "What's on your mind?",
			Domain:                 "www.speakeasy.com",
			Author:                 "Speak Easy Team",
			Email:                  "speakeasy@example.com",
			GoogleAnalyticsAccount: "UA-73651-1",
			GithubUsername:         "speakeasy",
			TwitterUsername:        "speakeasy",
			DisqusID:               "speakeasy",
			TagsPath:               "tags",
			Language:               "en-us",
		},
		HTMLOptions: HTMLOptions{
			TruncateSummaryAt:  1000,
			BuildExtensions:    []string{".html", ".htm", ".md", ".markdown"},
			MarkdownExtensions: []string{".md", ".markdown"},
			SummaryMarker:      "<!--more-->",
			Paginate:           10,
			Minify:             true,
		},
		ServeConfig: ServeConfiguration{
			Port: 8100,
		},
	}
}

type Configuration struct {
	RootDir    string `json:"root_directory,omitempty" yaml:"root_directory,omitempty"`
	AppsDir    string `json:"apps_directory,omitempty" yaml:"apps_directory,omitempty"`
	ThemesDir  string `json:"themes_directory,omitempty" yaml:"themes_directory,omitempty"`
	ContentDir string `json:"content_directory,omitempty" yaml:"content_directory,omitempty"`

	DevOutput          string `json:"dev_output,omitempty" yaml:"dev_output,omitempty"`
	ProdOutput         string `json:"prod_output,omitempty" yaml:"prod_output,omitempty"`
	DevRelativeOutput  string `json:"dev_relative_output,omitempty" yaml:"dev_relative_output,omitempty"`
	ProdRelativeOutput string `json:"prod_relative_output,omitempty" yaml:"prod_relative_output,omitempty"`

	// ProdAssetsURL is where production assets are deployed. Empty keeps
	// asset paths relative to the deploy root; a CDN or bucket URL also works.
	ProdAssetsURL string `json:"prod_assets_url" yaml:"prod_assets_url"`
	DevAssetsURL  string `json:"dev_assets_url,omitempty" yaml:"dev_assets_url,omitempty"`
	HotPort       int    `json:"hot_port,omitempty" yaml:"hot_port,omitempty"`

	Stage       string   `json:"stage,omitempty" yaml:"stage,omitempty"`
	Theme       string   `json:"theme,omitempty" yaml:"theme,omitempty"`
	BuildSuffix string   `json:"build_suffix,omitempty" yaml:"build_suffix,omitempty"`
	IgnoreFiles []string `json:"ignore_files,omitempty" yaml:"ignore_files,omitempty"`

	Site        Site               `json:"site" yaml:"site"`
	HTMLOptions HTMLOptions        `json:"html_options" yaml:"html_options"`
	ServeConfig ServeConfiguration `json:"serve_config,omitempty" yaml:"serve_config,omitempty"`
}

// Site is attached to every rendered page.
type Site struct {
	Title                  string `json:"title" yaml:"title"`
	Subtitle               string `json:"subtitle,omitempty" yaml:"subtitle,omitempty"`
	Domain                 string `json:"domain,omitempty" yaml:"domain,omitempty"`
	Author                 string `json:"author,omitempty" yaml:"author,omitempty"`
	Email                  string `json:"email,omitempty" yaml:"email,omitempty"`
	GoogleAnalyticsAccount string `json:"google_analytics_account,omitempty" yaml:"google_analytics_account,omitempty"`
	GithubUsername         string `json:"github_username,omitempty" yaml:"github_username,omitempty"`
	TwitterUsername        string `json:"twitter_username,omitempty" yaml:"twitter_username,omitempty"`
	DisqusID               string `json:"disqus_id,omitempty" yaml:"disqus_id,omitempty"`
	TagsPath               string `json:"tags_path,omitempty" yaml:"tags_path,omitempty"`
	Language               string `json:"language,omitempty" yaml:"language,omitempty"`
	Theme                  string `json:"theme,omitempty" yaml:"theme,omitempty"`
}

// HTMLOptions drive the content pipeline. The mapstructure names match the
// keys accepted in per-app options.json files.
type HTMLOptions struct {
	TruncateSummaryAt  int      `json:"truncate_summary_at,omitempty" yaml:"truncate_summary_at,omitempty" mapstructure:"truncateSummaryAt"`
	BuildExtensions    []string `json:"build_extensions,omitempty" yaml:"build_extensions,omitempty" mapstructure:"buildExtensions"`
	MarkdownExtensions []string `json:"markdown_extensions,omitempty" yaml:"markdown_extensions,omitempty" mapstructure:"markdownExtensions"`
	SummaryMarker      string   `json:"summary_marker,omitempty" yaml:"summary_marker,omitempty" mapstructure:"summaryMarker"`
	RecentPostsTitle   string   `json:"recent_posts_title,omitempty" yaml:"recent_posts_title,omitempty" mapstructure:"recentPostsTitle"`
	Paginate           int      `json:"paginate,omitempty" yaml:"paginate,omitempty" mapstructure:"paginate"`
	Theme              string   `json:"theme,omitempty" yaml:"theme,omitempty" mapstructure:"theme"`
	Highlight          string   `json:"highlight,omitempty" yaml:"highlight,omitempty" mapstructure:"highlight"`
	Minify             bool     `json:"minify" yaml:"minify" mapstructure:"minify"`
	Build              int64    `json:"-" yaml:"-" mapstructure:"build"`
}

type ServeConfiguration struct {
	Redirect404 string `json:"redirect_404" yaml:"redirect_404"`
	Port        int    `json:"port" yaml:"port"`
	Metrics     bool   `json:"metrics" yaml:"metrics"`
}

// Load builds the configuration for one invocation: defaults, then the config
// file (JSON or YAML, optional), then .env files and the process environment.
// The result is not modified afterwards.
func Load(configpath string) (*Configuration, error) {
	if configpath == "" {
		configpath = DefaultConfigFile
	}

	cfg := DefaultConfiguration()

	err := decodeFile(configpath, cfg)
	if err != nil {
		return nil, err
	}

	loadEnvFiles(cfg.RootDir)
	applyEnv(cfg)

	cfg.Site.Theme = cfg.Theme
	cfg.HTMLOptions.Theme = cfg.Theme
	cfg.HTMLOptions.Build = time.Now().UnixMilli()

	return cfg, nil
}

func decodeFile(configpath string, cfg *Configuration) error {
	_, err := os.Stat(configpath)
	if err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("could not access configuration file %s: %w", configpath, err)
		}

		return nil
	}

	f, err := os.Open(configpath)
	if err != nil {
		return err
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(configpath)) {
	case ".yaml", ".yml":
		err = yaml.NewDecoder(f).Decode(cfg)
	default:
		err = json.NewDecoder(f).Decode(cfg)
	}
	if err != nil {
		return fmt.Errorf("could not decode configuration file %s: %w", configpath, err)
	}

	return nil
}

// loadEnvFiles never overrides variables already set in the process environment.
func loadEnvFiles(root string) {
	for _, name := range []string{".env", ".env.local"} {
		p := filepath.Join(root, name)
		if _, err := os.Stat(p); err != nil {
			continue
		}
		_ = godotenv.Load(p)
	}
}

func applyEnv(cfg *Configuration) {
	if v := os.Getenv("ASSETS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			cfg.HotPort = port
		}
	}
	if v, ok := os.LookupEnv("ASSETS_URL"); ok {
		cfg.DevAssetsURL = v
	}
	if v := os.Getenv("THEME"); v != "" {
		cfg.Theme = v
	}
	if v := os.Getenv("STAGE"); v != "" {
		cfg.Stage = v
	}
}

// Path resolves p against the root directory.
func (c *Configuration) Path(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.RootDir, p)
}

// ThemeTemplateDirs lists the active theme before the default theme.
func (c *Configuration) ThemeTemplateDirs() []string {
	return []string{
		filepath.Join(c.Path(c.ThemesDir), c.Theme),
		filepath.Join(c.Path(c.ThemesDir), "default"),
	}
}

// Clone returns a deep copy, so callers can derive variants without aliasing.
func (c *Configuration) Clone() *Configuration {
	out := *c
	out.IgnoreFiles = append([]string(nil), c.IgnoreFiles...)
	out.HTMLOptions = c.HTMLOptions.Clone()
	return &out
}

func (o HTMLOptions) Clone() HTMLOptions {
	o.BuildExtensions = append([]string(nil), o.BuildExtensions...)
	o.MarkdownExtensions = append([]string(nil), o.MarkdownExtensions...)
	return o
}
