package commands

import (
	"context"
	"fmt"
	"time"
)

type SweepCmd struct {
	Timeout time.Duration `help:"upper bound for the sweep" default:"1m"`
}

func (c *SweepCmd) Run(ctx context.Context, globals *Globals) error {
	cfg, log, closeLog, err := globals.setup()
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	be, err := openBackend(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer be.close()

	n, err := be.auth.SweepExpired(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("deactivated %d idle sessions\n", n)
	return nil
}
