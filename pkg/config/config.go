// Package config loads the patcher's configuration record (spec §6.6) from
// a TOML file, the same format the aptutil mirror tool in this codebase's
// dependency stack uses for its own settings.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/rpatcher/rpatcher/pkg/patchlib"
)

// Window mirrors the window.* configuration section.
type Window struct {
	Title     string `toml:"title"`
	Width     int    `toml:"width"`
	Height    int    `toml:"height"`
	Resizable bool   `toml:"resizable"`
}

// Web mirrors the web.* configuration section.
type Web struct {
	PatchServers         []MirrorConfig `toml:"patch_servers"`
	PreferredPatchServer string         `toml:"preferred_patch_server"`
}

// MirrorConfig is one entry of web.patch_servers.
type MirrorConfig struct {
	Name     string `toml:"name"`
	PlistURL string `toml:"plist_url"`
	PatchURL string `toml:"patch_url"`
}

// Patching mirrors the patching.* configuration section.
type Patching struct {
	CheckIntegrity bool   `toml:"check_integrity"`
	InPlace        bool   `toml:"in_place"`
	CreateGRF      bool   `toml:"create_grf"`
	MaxSpeed       string `toml:"max_speed"`
}

// Client mirrors the client.* configuration section.
type Client struct {
	DefaultGRFName string `toml:"default_grf_name"`
}

// Play mirrors the play.* configuration section (game executable launch).
type Play struct {
	Path      string   `toml:"path"`
	Arguments []string `toml:"arguments"`
}

// Setup mirrors the setup.* configuration section.
type Setup struct {
	Path      string   `toml:"path"`
	Arguments []string `toml:"arguments"`
}

// History configures the supplementary, non-authoritative applied-patch
// audit log (additive to the required binary cache file, see
// SPEC_FULL.md §4.B). An empty Path disables it.
type History struct {
	Path string `toml:"path"`
}

// Config is the full configuration record, enumerated by spec §6.6 plus
// this repo's own optional [history] section.
type Config struct {
	Window   Window   `toml:"window"`
	Web      Web      `toml:"web"`
	Patching Patching `toml:"patching"`
	Client   Client   `toml:"client"`
	Play     Play     `toml:"play"`
	Setup    Setup    `toml:"setup"`
	History  History  `toml:"history"`
}

// defaults applied for any absent optional field, before the TOML decode.
func defaults() Config {
	return Config{
		Window: Window{Title: "Patcher", Width: 600, Height: 400, Resizable: false},
		Patching: Patching{
			CheckIntegrity: true,
			InPlace:        false,
			CreateGRF:      false,
		},
	}
}

// Load reads and parses path. A malformed file is reported via
// patchlib.ErrConfigInvalid; callers surface this as a fatal startup error
// (spec §7: ConfigInvalid).
func Load(path string) (Config, error) {
	cfg := defaults()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		if os.IsNotExist(err) {
			return cfg, fmt.Errorf("%w: %s: %v", patchlib.ErrConfigInvalid, path, err)
		}
		return cfg, fmt.Errorf("%w: %v", patchlib.ErrConfigInvalid, err)
	}
	if err := cfg.validate(); err != nil {
		return cfg, fmt.Errorf("%w: %v", patchlib.ErrConfigInvalid, err)
	}
	return cfg, nil
}

func (c Config) validate() error {
	if len(c.Web.PatchServers) == 0 {
		return fmt.Errorf("web.patch_servers must list at least one mirror")
	}
	seen := make(map[string]bool, len(c.Web.PatchServers))
	for _, m := range c.Web.PatchServers {
		if m.Name == "" {
			return fmt.Errorf("mirror entry missing name")
		}
		if seen[m.Name] {
			return fmt.Errorf("duplicate mirror name %q", m.Name)
		}
		seen[m.Name] = true
		if m.PlistURL == "" || m.PatchURL == "" {
			return fmt.Errorf("mirror %q missing plist_url/patch_url", m.Name)
		}
	}
	return nil
}

// Mirrors converts the configured patch servers to patchlib.MirrorInfo.
func (c Config) Mirrors() []patchlib.MirrorInfo {
	out := make([]patchlib.MirrorInfo, len(c.Web.PatchServers))
	for i, m := range c.Web.PatchServers {
		out[i] = patchlib.MirrorInfo{Name: m.Name, PlistURL: m.PlistURL, PatchURL: m.PatchURL}
	}
	return out
}
