package cmd

import "github.com/spf13/cobra"

func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "sw",
		Short:         "StewardFlow (sw): run clinical-study onboarding sessions from the terminal",
		Long:          "sw drives multi-phase study onboarding sessions against the workflow backend: start and watch sessions, review and approve recommended data sources, submit feedback, and inspect the local response cache.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	app, err := wireApp()
	if err != nil {
		rootCmd.RunE = func(_ *cobra.Command, _ []string) error {
			return err
		}
		return rootCmd
	}

	rootCmd.AddCommand(
		newVersionCmd(),
		newSessionCmd(app),
		newWatchCmd(app),
		newApprovalsCmd(app),
		newFeedbackCmd(app),
		newCacheCmd(app),
		newDevserverCmd(app),
	)

	return rootCmd
}
