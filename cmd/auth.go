// Package cmd implements the command-line interface for strelay.
package cmd

import (
	"fmt"
	"os"

	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/cobra"
	"github.com/strelay-cli/strelay/auth"
	"github.com/strelay-cli/strelay/icon"
)

func init() {
	rootCmd.AddCommand(authCmd)
}

// authCmd provides a parent command for managing per-site credentials.
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage per-site credentials stored in the system keyring",
}

func init() {
	authCmd.AddCommand(authSetCmd)
	authCmd.AddCommand(authShowCmd)
	authCmd.AddCommand(authDeleteCmd)

	authShowCmd.SetOut(os.Stdout)
}

// authSetCmd stores credentials for a site.
var authSetCmd = &cobra.Command{
	Use:     "set [site]",
	Short:   "Store credentials for a site",
	Args:    cobra.ExactArgs(1),
	Example: "  strelay auth set example.tld",
	Run: func(cmd *cobra.Command, args []string) {
		site := args[0]

		var answers struct {
			User     string
			Password string
		}
		questions := []*survey.Question{
			{
				Name:     "user",
				Prompt:   &survey.Input{Message: "Username:"},
				Validate: survey.Required,
			},
			{
				Name:   "password",
				Prompt: &survey.Password{Message: "Password:"},
			},
		}
		handleErr(survey.Ask(questions, &answers))

		handleErr(auth.Set(site, answers.User, answers.Password))
		fmt.Printf("%s stored credentials for %s\n", icon.Get(icon.Success), site)
	},
}

// authShowCmd displays the username stored for a site.
var authShowCmd = &cobra.Command{
	Use:   "show [site]",
	Short: "Display the username stored for a site",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		site := args[0]

		user, _, err := auth.Get(site)
		if auth.ErrNotFound(err) {
			handleErr(fmt.Errorf("no credentials stored for %s", site))
		}
		handleErr(err)

		cmd.Printf("%s: %s\n", site, user)
	},
}

// authDeleteCmd removes the credentials stored for a site.
var authDeleteCmd = &cobra.Command{
	Use:     "delete [site]",
	Short:   "Remove the credentials stored for a site",
	Aliases: []string{"remove"},
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		site := args[0]

		handleErr(auth.Delete(site))
		fmt.Printf("%s deleted credentials for %s\n", icon.Get(icon.Success), site)
	},
}
