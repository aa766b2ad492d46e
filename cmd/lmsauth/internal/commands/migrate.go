package commands

import (
	"github.com/MrEthical07/lmsauth/internal/db"
)

type MigrateCmd struct {
	Direction string `arg:"" help:"up or down" enum:"up,down" default:"up"`
}

func (c *MigrateCmd) Run(globals *Globals) error {
	cfg, log, closeLog, err := globals.setup()
	if err != nil {
		return err
	}
	defer closeLog()

	if err := db.Migrate(cfg.DatabaseURL, db.Direction(c.Direction)); err != nil {
		return err
	}

	version, dirty, err := db.Version(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	log.Info().Str("direction", c.Direction).Uint("version", version).Bool("dirty", dirty).Msg("migrations complete")
	return nil
}
