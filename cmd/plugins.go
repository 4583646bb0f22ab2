// Package cmd implements the command-line interface for strelay.
package cmd

import (
	"os"

	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"github.com/strelay-cli/strelay/color"
	"github.com/strelay-cli/strelay/icon"
	"github.com/strelay-cli/strelay/plugin"
	"github.com/strelay-cli/strelay/plugin/custom"
	"github.com/strelay-cli/strelay/plugins"
	"github.com/strelay-cli/strelay/style"
	"github.com/strelay-cli/strelay/where"
)

func init() {
	rootCmd.AddCommand(pluginsCmd)
}

// pluginsCmd provides a parent command for managing stream extractors.
var pluginsCmd = &cobra.Command{
	Use:   "plugins",
	Short: "Manage built-in and sideloaded stream extractors",
}

func init() {
	pluginsCmd.AddCommand(pluginsListCmd)

	pluginsListCmd.Flags().BoolP("raw", "r", false, "Suppress header and metadata descriptions in the output")
	pluginsListCmd.Flags().BoolP("sideloaded", "s", false, "Display only user-installed Lua plugins")
	pluginsListCmd.Flags().BoolP("builtin", "b", false, "Display only pre-compiled built-in plugins")

	pluginsListCmd.MarkFlagsMutuallyExclusive("sideloaded", "builtin")
	pluginsListCmd.SetOut(os.Stdout)
}

// pluginsListCmd displays a summary of all registered stream extractors.
var pluginsListCmd = &cobra.Command{
	Use:   "list",
	Short: "Display a collection of all registered stream extractors",
	Run: func(cmd *cobra.Command, args []string) {
		printHeader := !lo.Must(cmd.Flags().GetBool("raw"))
		headerStyle := style.New().Foreground(color.HiBlue).Bold(true).Render
		h := func(s string) {
			if printHeader {
				cmd.Println(headerStyle(s))
			}
		}

		printBuiltin := func() {
			h("Builtin:")
			registry := plugin.NewRegistry()
			plugins.Register(registry)
			for _, entry := range registry.Entries() {
				cmd.Println(entry.Name)
			}
		}

		printSideloaded := func() {
			h("Sideloaded:")
			for _, entry := range custom.LoadDir(where.Plugins()) {
				cmd.Println(entry.Name)
			}
		}

		switch {
		case lo.Must(cmd.Flags().GetBool("builtin")):
			printBuiltin()
		case lo.Must(cmd.Flags().GetBool("sideloaded")):
			printSideloaded()
		default:
			printBuiltin()
			if printHeader {
				cmd.Println()
			}
			printSideloaded()
		}
	},
}

func init() {
	pluginsCmd.AddCommand(pluginsCheckCmd)
}

// pluginsCheckCmd validates a local Lua plugin file for development and debugging.
var pluginsCheckCmd = &cobra.Command{
	Use:     "check [file]",
	Short:   "Validate a local Lua plugin file",
	Long:    "Load a Lua plugin script and verify that it exposes the required functions.",
	Args:    cobra.ExactArgs(1),
	Example: "  strelay plugins check ./myplugin.lua",
	Run: func(cmd *cobra.Command, args []string) {
		entry, err := custom.Load(args[0])
		handleErr(err)

		cmd.Printf("%s %s is a valid plugin\n", icon.Get(icon.Success), entry.Name)
	},
}
