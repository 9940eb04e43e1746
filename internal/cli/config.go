// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// config.go - Encrypted settings commands.
//
// Command: config <set|get|delete|list|show> [key] [value]
//
// Examples:
//   meei config set deepseek.api_key sk-...
//   meei config set default_provider gemini
//   meei config get openai.base_url
//   meei config show deepseek
//   meei config list

package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Jeffrey0117/meei/internal/config"
	"github.com/Jeffrey0117/meei/internal/util"
)

const configUsage = "meei config <set|get|delete|list|show> [key] [value]"

// HandleConfig handles the "config" command.
func HandleConfig(env *Env, args Args) error {
	switch args.Subcommand {
	case "set", "get", "delete", "del", "rm", "list", "ls", "show":
	case "":
		return ErrMissingArgument("subcommand", configUsage)
	default:
		return &ValidationError{Field: "subcommand", Value: args.Subcommand, Reason: "unknown config subcommand", Example: configUsage}
	}

	client, err := env.open(args)
	if err != nil {
		return err
	}
	defer client.Close()
	settings := client.Settings()

	switch args.Subcommand {
	case "set":
		return configSet(env, args, settings)
	case "get":
		return configGet(env, args, settings)
	case "delete", "del", "rm":
		return configDelete(env, args, settings)
	case "list", "ls":
		return configList(env, args, settings)
	default:
		return configShow(env, args, settings)
	}
}

func configSet(env *Env, args Args, settings *config.Settings) error {
	if args.ConfigKey == "" || args.ConfigVal == "" {
		return ErrMissingArgument("key and value", "meei config set deepseek.api_key sk-...")
	}
	if err := settings.Set(args.ConfigKey, args.ConfigVal); err != nil {
		return err
	}
	if args.JSON {
		return NewJSONResponse("config set", ConfigValueData{Key: args.ConfigKey, Value: displayValue(args.ConfigKey, args.ConfigVal), Found: true}).Print(env.Stdout)
	}
	fmt.Fprintf(env.Stdout, "%s %s saved\n", SuccessStyle.Render("[OK]"), args.ConfigKey)
	return nil
}

func configGet(env *Env, args Args, settings *config.Settings) error {
	if args.ConfigKey == "" {
		return ErrMissingArgument("key", "meei config get deepseek.model")
	}
	value, found, err := settings.Get(args.ConfigKey)
	if err != nil {
		return err
	}
	if !found {
		return &NotFoundError{Resource: "setting", ID: args.ConfigKey}
	}
	if args.JSON {
		return NewJSONResponse("config get", ConfigValueData{Key: args.ConfigKey, Value: value, Found: true}).Print(env.Stdout)
	}
	fmt.Fprintln(env.Stdout, formatValue(value))
	return nil
}

func configDelete(env *Env, args Args, settings *config.Settings) error {
	if args.ConfigKey == "" {
		return ErrMissingArgument("key", "meei config delete deepseek.api_key")
	}
	removed, err := settings.Delete(args.ConfigKey)
	if err != nil {
		return err
	}
	if !removed {
		return &NotFoundError{Resource: "setting", ID: args.ConfigKey}
	}
	if args.JSON {
		return NewJSONResponse("config delete", ConfigValueData{Key: args.ConfigKey, Found: true}).Print(env.Stdout)
	}
	fmt.Fprintf(env.Stdout, "%s %s deleted\n", SuccessStyle.Render("[OK]"), args.ConfigKey)
	return nil
}

func configList(env *Env, args Args, settings *config.Settings) error {
	names, err := settings.ListProviders()
	if err != nil {
		return err
	}
	if args.JSON {
		return NewJSONResponse("config list", map[string][]string{"providers": names}).Print(env.Stdout)
	}
	if len(names) == 0 {
		fmt.Fprintln(env.Stdout, DimStyle.Render("No providers configured."))
		return nil
	}
	for _, name := range names {
		fmt.Fprintln(env.Stdout, name)
	}
	return nil
}

func configShow(env *Env, args Args, settings *config.Settings) error {
	if args.ConfigKey == "" {
		return ErrMissingArgument("provider", "meei config show deepseek")
	}
	section, err := settings.Provider(args.ConfigKey)
	if err != nil {
		return err
	}
	if len(section) == 0 {
		return &NotFoundError{Resource: "provider settings", ID: args.ConfigKey}
	}

	masked := make(map[string]any, len(section))
	keys := make([]string, 0, len(section))
	for k, v := range section {
		masked[k] = displayValue(k, v)
		keys = append(keys, k)
	}
	sort.Strings(keys)

	if args.JSON {
		return NewJSONResponse("config show", masked).Print(env.Stdout)
	}
	fmt.Fprintln(env.Stdout, TitleStyle.Render(args.ConfigKey))
	for _, k := range keys {
		fmt.Fprintf(env.Stdout, "  %s %s\n", RenderLabel(k, 12), ValueStyle.Render(formatValue(masked[k])))
	}
	return nil
}

// displayValue masks values whose key looks like a credential.
func displayValue(key string, value any) any {
	s, ok := value.(string)
	if !ok {
		return value
	}
	if strings.Contains(strings.ToLower(key), "key") {
		return util.MaskSecret(s)
	}
	return s
}

func formatValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return "{" + strings.Join(keys, ", ") + "}"
	default:
		return fmt.Sprint(val)
	}
}
