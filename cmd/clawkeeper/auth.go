package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"golang.org/x/term"

	"github.com/roelfdiedericks/clawkeeper/internal/config"
	"github.com/roelfdiedericks/clawkeeper/internal/paths"
)

type AuthCmd struct {
	SetKey  AuthSetKeyCmd  `cmd:"" name:"set-key" help:"Save the Anthropic API key the gateway runs with."`
	Show    AuthShowCmd    `cmd:"" help:"Show the stored key, masked."`
	Restore AuthRestoreCmd `cmd:"" help:"List or restore gateway config backups."`
}

type AuthSetKeyCmd struct {
	Key string `help:"Key value; omit to be prompted." env:"ANTHROPIC_API_KEY"`
}

func (c *AuthSetKeyCmd) Run(rc *runContext) error {
	key := strings.TrimSpace(c.Key)
	if key == "" {
		if !term.IsTerminal(int(os.Stdin.Fd())) {
			return errors.New("no key given and stdin is not a terminal; pass --key")
		}

		form := huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("Anthropic API key").
					Description("Stored in "+paths.SettingsPath()).
					EchoMode(huh.EchoModePassword).
					Value(&key),
			),
		).WithShowHelp(true)

		if err := form.Run(); err != nil {
			if errors.Is(err, huh.ErrUserAborted) {
				return nil
			}
			return err
		}
		key = strings.TrimSpace(key)
	}

	if err := config.SaveAPIKey(key); err != nil {
		return err
	}
	fmt.Println("API key saved")
	return nil
}

type AuthShowCmd struct{}

func (c *AuthShowCmd) Run(rc *runContext) error {
	key, err := config.LoadAPIKey()
	if err != nil {
		return err
	}
	if key == "" {
		fmt.Println("no API key saved")
		return nil
	}
	fmt.Println(maskKey(key))
	return nil
}

// maskKey keeps enough of the key to recognize it without exposing it.
func maskKey(key string) string {
	if len(key) <= 12 {
		return "****"
	}
	return key[:7] + "..." + key[len(key)-4:]
}

type AuthRestoreCmd struct {
	Index int  `help:"Backup index from --list (0 = newest)." default:"0"`
	List  bool `help:"List available backups instead of restoring."`
}

func (c *AuthRestoreCmd) Run(rc *runContext) error {
	path := paths.OpenClawConfigPath()
	backups := config.ListBackups(path)

	if c.List {
		if len(backups) == 0 {
			fmt.Println("no backups")
			return nil
		}
		for _, b := range backups {
			fmt.Printf("%2d  %s  %6d bytes  %s\n", b.Index, b.ModTime.Format(time.RFC3339), b.Size, b.Path)
		}
		return nil
	}

	if err := config.RestoreBackup(path, c.Index); err != nil {
		return err
	}
	fmt.Printf("restored backup %d over %s\n", c.Index, path)
	return nil
}
