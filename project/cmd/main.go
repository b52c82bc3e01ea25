package main

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"

	"github.com/rs/zerolog/log"
	"github.com/tzrikka/xdg"
	altsrc "github.com/urfave/cli-altsrc/v3"
	"github.com/urfave/cli/v3"

	"kudos-bot/project/infrastructure/config"
)

func main() {
	var version string
	if buildInfo, ok := debug.ReadBuildInfo(); ok {
		version = buildInfo.Main.Version
	}

	cmd := &cli.Command{
		Name:    "kudos-bot",
		Usage:   "Slack bot for sending kudos to teammates",
		Version: version,
		Flags:   config.Flags(configFile()),
		Action:  run,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "kudos-bot: %v\n", err)
		os.Exit(1)
	}
}

// configFile は XDG 設定ディレクトリ配下の config.toml を返します
// 初回起動時は空ファイルを作成し、フラグと環境変数だけで動くようにします
func configFile() altsrc.StringSourcer {
	path, err := xdg.CreateFile(xdg.ConfigHome, config.DirName, config.FileName)
	if err != nil {
		log.Fatal().Err(err).Str("dir", config.DirName).Msg("設定ファイル作成失敗")
	}
	return altsrc.StringSourcer(path)
}
