package kuwo

import (
	"fmt"

	"github.com/liuran001/SongProxy-Go/proxy/config"
	"github.com/liuran001/SongProxy-Go/proxy/platform"
	platformplugins "github.com/liuran001/SongProxy-Go/proxy/platform/plugins"
	"github.com/liuran001/SongProxy-Go/proxy/primary"
)

func init() {
	if err := platformplugins.Register(string(platform.SourceKuwo), buildContribution); err != nil {
		panic(err)
	}
}

func buildContribution(cfg *config.Config, deps platformplugins.Deps) (*platformplugins.Contribution, error) {
	if deps.Primary == nil {
		return nil, fmt.Errorf("primary client required")
	}
	return &platformplugins.Contribution{
		Adapter: primary.NewAdapter(platform.SourceKuwo, deps.Primary, ParseSearch),
	}, nil
}
