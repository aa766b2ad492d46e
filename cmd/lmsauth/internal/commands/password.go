package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/MrEthical07/lmsauth"
	"github.com/MrEthical07/lmsauth/internal/userstore"
)

type HashPasswordCmd struct {
	Password string `arg:"" optional:"" help:"password to hash; read from stdin when omitted"`
}

func (c *HashPasswordCmd) Run(globals *Globals) error {
	cfg, _, closeLog, err := globals.setup()
	if err != nil {
		return err
	}
	defer closeLog()

	plain, err := passwordArg(c.Password)
	if err != nil {
		return err
	}
	hasher, err := cfg.Hasher()
	if err != nil {
		return err
	}
	hash, err := hasher.Hash(plain)
	if err != nil {
		return err
	}
	fmt.Println(hash)
	return nil
}

type CreateUserCmd struct {
	Email      string `required:"" help:"login email"`
	Name       string `required:"" help:"display name"`
	Role       string `help:"account role" enum:"Student,Instructor,University-admin,Super-admin" default:"Student"`
	State      string `help:"account state" enum:"Active,Pending,Banned" default:"Active"`
	University string `help:"university name"`
	Password   string `help:"initial password; read from stdin when omitted"`
}

func (c *CreateUserCmd) Run(ctx context.Context, globals *Globals) error {
	cfg, log, closeLog, err := globals.setup()
	if err != nil {
		return err
	}
	defer closeLog()

	plain, err := passwordArg(c.Password)
	if err != nil {
		return err
	}
	if len(plain) < cfg.PasswordMinLength {
		return fmt.Errorf("password must be at least %d characters", cfg.PasswordMinLength)
	}
	hasher, err := cfg.Hasher()
	if err != nil {
		return err
	}
	hash, err := hasher.Hash(plain)
	if err != nil {
		return err
	}

	pool, err := openPool(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer pool.Close()

	u, err := userstore.New(pool).Create(ctx, userstore.NewUser{
		Name:         c.Name,
		Email:        c.Email,
		PasswordHash: hash,
		Role:         lmsauth.Role(c.Role),
		University:   c.University,
		State:        lmsauth.AccountState(c.State),
	})
	if err != nil {
		return err
	}
	log.Info().Str("user_id", u.ID).Str("role", string(u.Role)).Msg("user created")
	fmt.Println(u.ID)
	return nil
}

func passwordArg(v string) (string, error) {
	if v != "" {
		return v, nil
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read password: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("password must not be empty")
	}
	return line, nil
}
