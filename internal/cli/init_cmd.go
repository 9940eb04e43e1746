// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// init_cmd.go - Credential store setup.
//
// Command: init [--force]
//
// Prompts for a passphrase twice and derives the master key. --force
// replaces an existing key; anything sealed with the old key becomes
// unreadable.

package cli

import (
	"errors"
	"fmt"

	"github.com/Jeffrey0117/meei/internal/security"
)

const minPassphraseLen = 8

// HandleInit handles the "init" command.
func HandleInit(env *Env, args Args) error {
	client, err := env.open(args)
	if err != nil {
		return err
	}
	defer client.Close()

	creds := client.Credentials()
	if creds.IsInitialized() && !args.Force {
		return fmt.Errorf("%w: use 'meei init --force' to replace the key (stored settings become unreadable)",
			security.ErrAlreadyInitialized)
	}

	passphrase, err := env.readSecret("Passphrase: ")
	if err != nil {
		return err
	}
	if len([]rune(passphrase)) < minPassphraseLen {
		return NewValidationError("passphrase", "", fmt.Sprintf("must be at least %d characters", minPassphraseLen))
	}
	confirm, err := env.readSecret("Confirm passphrase: ")
	if err != nil {
		return err
	}
	if passphrase != confirm {
		return NewValidationError("passphrase", "", "passphrases do not match")
	}

	if args.Force {
		err = creds.Reinitialize(passphrase)
	} else {
		err = creds.Initialize(passphrase)
	}
	if err != nil {
		if errors.Is(err, security.ErrAlreadyInitialized) {
			return err
		}
		return fmt.Errorf("initialize credential store: %w", err)
	}

	if args.JSON {
		return NewJSONResponse("init", map[string]string{"home": creds.Dir()}).Print(env.Stdout)
	}
	fmt.Fprintf(env.Stdout, "%s Key store created in %s\n", SuccessStyle.Render("[OK]"), creds.Dir())
	fmt.Fprintln(env.Stdout, DimStyle.Render("Next: meei config set deepseek.api_key <key>"))
	return nil
}
