// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// providers.go - Lists supported providers and whether a key is available.

package cli

import (
	"fmt"

	"github.com/Jeffrey0117/meei/internal/cloud"
)

// HandleProviders handles the "providers" command.
func HandleProviders(env *Env, args Args) error {
	client, err := env.open(args)
	if err != nil {
		return err
	}
	defer client.Close()

	def := client.DefaultProvider()
	infos := make([]ProviderInfo, 0, len(cloud.IDs()))
	for _, id := range cloud.IDs() {
		p, err := client.Provider(id)
		if err != nil {
			return err
		}
		profile := p.Profile()
		infos = append(infos, ProviderInfo{
			ID:           id,
			Name:         profile.DisplayName,
			DefaultModel: profile.DefaultModel,
			EnvVar:       profile.EnvVar,
			HasKey:       p.HasAPIKey(),
			Default:      id == def,
		})
	}

	if args.JSON {
		return NewJSONResponse("providers", infos).Print(env.Stdout)
	}

	fmt.Fprintln(env.Stdout, TitleStyle.Render("Providers"))
	for _, info := range infos {
		status := RenderStatus("ok")
		if !info.HasKey {
			status = RenderStatus("missing")
		}
		marker := " "
		if info.Default {
			marker = "*"
		}
		envVar := info.EnvVar
		if envVar == "" {
			envVar = "settings only"
		}
		fmt.Fprintf(env.Stdout, "%s %s %s %s %s\n",
			status, marker,
			RenderLabel(info.ID, 10),
			ValueStyle.Render(fit(info.DefaultModel, column{width: 24})),
			DimStyle.Render(envVar))
	}
	fmt.Fprintln(env.Stdout, DimStyle.Render("* default provider; 'chatgpt' is an alias for openai"))
	return nil
}
