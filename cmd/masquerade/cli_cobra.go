package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

func executeCLI() error {
	return buildRootCommand(true).Execute()
}

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "%s %s\n", appName, formatVersion())
	build, goVer := formatBuildInfo()
	if build != "" {
		fmt.Fprintf(w, "  Build: %s\n", build)
	}
	if goVer != "" {
		fmt.Fprintf(w, "  Go: %s\n", goVer)
	}
}

func buildRootCommand(includeDocsCommand bool) *cobra.Command {
	var showVersion bool
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "masquerade",
		Short: "Chat bot that lets users speak through named profiles",
		Long: strings.TrimSpace(`masquerade relays messages under user-defined profiles.

Prefix a line with "name;" to speak as that profile, set defaults per channel,
server or globally, and import profiles from a pk;export file.`),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				printVersion(cmd.OutOrStdout())
				return nil
			}
			_ = cmd.Help()
			return fmt.Errorf("a subcommand is required")
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.Flags().BoolVarP(&showVersion, "version", "v", false, "Show build/version metadata")
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Config file (default ~/.masquerade/config.json)")
	root.PersistentFlags().BoolVarP(&opts.debug, "debug", "d", false, "Enable debug logging")

	root.AddCommand(newOnboardCommand(opts))
	root.AddCommand(newServeCommand(opts))
	root.AddCommand(newConsoleCommand(opts))
	root.AddCommand(newImportCommand(opts))
	root.AddCommand(newProfilesCommand(opts))
	root.AddCommand(newStatusCommand(opts))
	root.AddCommand(newVersionCommand())

	if includeDocsCommand {
		root.AddCommand(newDocsCommand(func() *cobra.Command { return buildRootCommand(false) }))
	}
	return root
}

func newOnboardCommand(opts *globalOptions) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:     "onboard",
		Short:   "Write a default config file",
		Example: "  masquerade onboard\n  masquerade onboard --force",
		RunE: func(cmd *cobra.Command, args []string) error {
			return onboardCmd(opts, force)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config")
	return cmd
}

func newServeCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "serve",
		Short:   "Run the Discord bot and status server",
		Long:    "Connect to Discord, load profiles from the configured storage and serve /health, /ready and /status.",
		Example: "  masquerade serve --debug",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serveCmd(opts)
		},
	}
}

func newConsoleCommand(opts *globalOptions) *cobra.Command {
	var (
		userID string
		memory bool
	)
	cmd := &cobra.Command{
		Use:   "console",
		Short: "Talk to the bot locally without Discord",
		Long: strings.TrimSpace(`Run the bot against a terminal channel. Every permission is granted.

Mention the bot with @masquerade to run commands. Reply with ^<id> text,
react with /react <id> <emoji> and attach files with /attach <path>.`),
		Example: strings.Join([]string{
			"  masquerade console",
			"  masquerade console --user alice --memory",
		}, "\n"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return consoleCmd(opts, userID, memory)
		},
	}
	cmd.Flags().StringVarP(&userID, "user", "u", "console-user", "User id to speak as")
	cmd.Flags().BoolVar(&memory, "memory", false, "Keep profiles in memory only")
	return cmd
}

func newImportCommand(opts *globalOptions) *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:     "import <file>",
		Short:   "Import profiles from a pk;export file",
		Example: "  masquerade import --user 123456789 export.json",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(userID) == "" {
				return fmt.Errorf("--user is required")
			}
			return importCmd(opts, userID, args[0])
		},
	}
	cmd.Flags().StringVarP(&userID, "user", "u", "", "Owner of the imported profiles")
	return cmd
}

func newProfilesCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "profiles <user-id>",
		Short:   "List a user's profiles and defaults",
		Example: "  masquerade profiles 123456789",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return profilesCmd(opts, args[0])
		},
	}
}

func newStatusCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "status",
		Short:   "Show configuration and storage readiness",
		Example: "  masquerade status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return statusCmd(opts)
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "version",
		Short:   "Show build/version metadata",
		Example: "  masquerade version",
		RunE: func(cmd *cobra.Command, args []string) error {
			printVersion(cmd.OutOrStdout())
			return nil
		},
	}
}
