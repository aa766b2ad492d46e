package main

import (
	"context"

	"github.com/MrEthical07/lmsauth/cmd/lmsauth/internal/commands"
	"github.com/alecthomas/kong"
)

var (
	version = "dev"
	cli     struct {
		Debug   bool             `help:"Enable debug logging."`
		EnvFile string           `help:"Optional .env file read before the environment." default:".env" type:"path"`
		Version kong.VersionFlag `help:"Print version and exit."`

		Serve        commands.ServeCmd        `cmd:"" help:"Run the HTTP API and the idle session sweeper."`
		Migrate      commands.MigrateCmd      `cmd:"" help:"Apply or roll back database migrations."`
		Sweep        commands.SweepCmd        `cmd:"" help:"Deactivate idle sessions once and exit."`
		HashPassword commands.HashPasswordCmd `cmd:"" help:"Print a password hash using the configured hasher."`
		CreateUser   commands.CreateUserCmd   `cmd:"" help:"Create an account directly in the database."`
	}
)

func main() {
	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Name("lmsauth"),
		kong.Description("Session authority for the LMS backend."),
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{Debug: cli.Debug, EnvFile: cli.EnvFile, Version: version})
	cmd.FatalIfErrorf(err)
}
