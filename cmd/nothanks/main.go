package main

import (
	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
)

// version is set by ldflags during build
var version = "dev"

type CLI struct {
	Version     kong.VersionFlag `short:"v" help:"Show version"`
	Server      ServerCmd        `cmd:"" help:"Run the game server"`
	Bots        BotsCmd          `cmd:"" help:"Connect a fleet of sample bots to a server"`
	Spawn       SpawnCmd         `cmd:"" help:"Run an in-process server with a bot fleet for demos"`
	Leaderboard LeaderboardCmd   `cmd:"" help:"Show the bot ratings of a running server"`
}

func main() {
	// NOTHANKS_* overrides may live in a local .env file.
	_ = godotenv.Load()

	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("nothanks"),
		kong.Description("No Thanks! card game server with a bot arena"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.Vars{
			"version": version,
		},
	)
	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}
