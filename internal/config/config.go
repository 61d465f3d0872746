// Package config loads process-wide settings once at startup.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

const (
	DefaultProjectID = "PVT_kwHOAAoTtc4BO2oX"
	DefaultPort      = "3000"
	DefaultAPIURL    = "https://api.github.com/"
	DefaultUserAgent = "github-project-sync"
)

var DefaultAllowedRepos = []string{"pikarama", "brick-directory"}

// Config is read-only after Load returns.
type Config struct {
	WebhookSecret string
	GitHubToken   string
	ProjectID     string
	APIURL        string
	UserAgent     string
	Port          string
	AllowedRepos  []string
}

// Load reads config.toml from the given directories (if present) and
// overlays environment variables. A missing file is not an error.
func Load(paths ...string) (Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	v.SetDefault("github.project_id", DefaultProjectID)
	v.SetDefault("github.api_url", DefaultAPIURL)
	v.SetDefault("github.user_agent", DefaultUserAgent)
	v.SetDefault("server.port", DefaultPort)
	v.SetDefault("sync.allowed_repos", DefaultAllowedRepos)

	bindings := map[string]string{
		"webhook.secret":     "WEBHOOK_SECRET",
		"github.token":       "GITHUB_TOKEN",
		"github.project_id":  "PROJECT_ID",
		"github.api_url":     "GITHUB_API_URL",
		"server.port":        "PORT",
		"sync.allowed_repos": "ALLOWED_REPOS",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return Config{}, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	if len(paths) > 0 {
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	cfg := Config{
		WebhookSecret: v.GetString("webhook.secret"),
		GitHubToken:   v.GetString("github.token"),
		ProjectID:     v.GetString("github.project_id"),
		APIURL:        v.GetString("github.api_url"),
		UserAgent:     v.GetString("github.user_agent"),
		Port:          v.GetString("server.port"),
		AllowedRepos:  splitRepos(v.GetStringSlice("sync.allowed_repos")),
	}
	return cfg, cfg.Validate()
}

// Validate reports every missing required setting at once.
func (c Config) Validate() error {
	var errs []error
	if c.WebhookSecret == "" {
		errs = append(errs, errors.New("WEBHOOK_SECRET required"))
	}
	if c.GitHubToken == "" {
		errs = append(errs, errors.New("GITHUB_TOKEN required"))
	}
	if c.ProjectID == "" {
		errs = append(errs, errors.New("PROJECT_ID required"))
	}
	if _, err := strconv.ParseUint(c.Port, 10, 16); err != nil {
		errs = append(errs, fmt.Errorf("PORT must be a number: %q", c.Port))
	}
	if len(c.AllowedRepos) == 0 {
		errs = append(errs, errors.New("sync.allowed_repos must list at least one repository"))
	}
	return errors.Join(errs...)
}

// splitRepos accepts both a TOML list and a comma separated env value.
func splitRepos(in []string) []string {
	var out []string
	for _, item := range in {
		for _, r := range strings.Split(item, ",") {
			if r = strings.TrimSpace(r); r != "" {
				out = append(out, r)
			}
		}
	}
	return out
}
