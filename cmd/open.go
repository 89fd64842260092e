/*
Copyright © 2025 Katie Mulliken <katie@mulliken.net>
*/
package cmd

import (
	"fmt"
	"strings"

	"github.com/cli/browser"
	"github.com/spf13/cobra"

	"github.com/seckatie/smartbookmark/internal/core/view"
	"github.com/seckatie/smartbookmark/internal/logger"
)

// openURL is replaced in tests.
var openURL = browser.OpenURL

// openCmd represents the open command
var openCmd = &cobra.Command{
	Use:          "open <query>",
	Short:        "Open the newest bookmark matching the query in your browser",
	Args:         cobra.MinimumNArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		log := logger.New(cfg.LogLevel, cfg.PrettyLog)
		defer func() { _ = log.Sync() }()

		c, err := newClient(cmd, cfg, log)
		if err != nil {
			return err
		}

		s, ok := c.CurrentSession(cmd.Context())
		if !ok {
			return view.ErrUnauthenticated
		}
		list, err := c.ListByOwner(cmd.Context(), s.OwnerID)
		if err != nil {
			return err
		}

		query := strings.Join(args, " ")
		matches := view.Filter(list, query)
		if len(matches) == 0 {
			return fmt.Errorf("no bookmark matches %q", query)
		}
		b := matches[0]

		fmt.Fprintf(cmd.OutOrStdout(), "Opening %s %s\n", b.Title, b.URL)
		if printOnly, _ := cmd.Flags().GetBool("print"); printOnly {
			return nil
		}
		return openURL(b.URL)
	},
}

func init() {
	openCmd.Flags().BoolP("print", "p", false, "Print the match instead of opening it")
	rootCmd.AddCommand(openCmd)
}
