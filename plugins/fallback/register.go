package fallback

import (
	"strings"

	"github.com/liuran001/SongProxy-Go/proxy/config"
	platformplugins "github.com/liuran001/SongProxy-Go/proxy/platform/plugins"
)

// Name is the plugin key, also used for the [plugins.fallback] section.
const Name = "fallback"

func init() {
	if err := platformplugins.Register(Name, buildContribution); err != nil {
		panic(err)
	}
}

// buildContribution returns nil when no fallback URL is configured, which
// disables the Degrade step.
func buildContribution(cfg *config.Config, deps platformplugins.Deps) (*platformplugins.Contribution, error) {
	baseURL := strings.TrimSpace(cfg.GetPluginString(Name, "api_url"))
	if baseURL == "" {
		baseURL = strings.TrimSpace(cfg.GetString("FALLBACK_API_URL"))
	}
	if baseURL == "" {
		if deps.Logger != nil {
			deps.Logger.Warn("fallback api not configured; quota exhaustion will end in not found")
		}
		return nil, nil
	}
	if _, err := withQuery(baseURL, nil); err != nil {
		return nil, err
	}
	return &platformplugins.Contribution{
		Fallback: New(baseURL, deps.HTTP),
		Probe:    baseURL,
	}, nil
}
