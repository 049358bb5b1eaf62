package main

import (
	"fmt"
	"runtime"

	"github.com/liuran001/SongProxy-Go/cmd"
	"github.com/liuran001/SongProxy-Go/proxy/app"

	_ "github.com/liuran001/SongProxy-Go/plugins/fallback"
	_ "github.com/liuran001/SongProxy-Go/plugins/kuwo"
	_ "github.com/liuran001/SongProxy-Go/plugins/netease"
	_ "github.com/liuran001/SongProxy-Go/plugins/qqmusic"
)

var (
	versionName = ""
	commitSHA   = ""
	buildTime   = ""
)

func main() {
	cmd.Execute(app.BuildInfo{
		RuntimeVer: runtime.Version(),
		BinVersion: versionName,
		CommitSHA:  commitSHA,
		BuildTime:  buildTime,
		BuildArch:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	})
}
