package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "vuelib",
	Short: "Build tools for the component library",
	Long: `This command builds the component library: it copies the component sources into the output
directory, downlevels the scripts, compiles the single-file components and the global stylesheet.`,
	SilenceUsage: true,
}

func addGlobalFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.StringP("config", "c", "vuelib.toml", "config file, relative to the project root")
	flags.Bool("json", false, "log JSON lines instead of pretty messages")
	flags.BoolP("quiet", "q", false, "hide the progress bar")
}

func init() {
	addGlobalFlags(rootCmd)
}

func Execute() {
	cobra.CheckErr(rootCmd.Execute())
}
