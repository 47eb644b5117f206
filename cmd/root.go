// root.go viper root command code
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tphakala/audition-go/cmd/present"
	"github.com/tphakala/audition-go/internal/conf"
)

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "audition",
		Short: "audition-go stimulus presentation CLI",
	}

	if err := setupFlags(rootCmd, settings); err != nil {
		return nil
	}

	presentCmd := present.Command(settings)
	rootCmd.AddCommand(presentCmd)

	return rootCmd
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) error {
	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug output")
	rootCmd.PersistentFlags().Float64Var(&settings.Audio.SampleRate, "samplerate", viper.GetFloat64("audio.samplerate"), "Sample rate of the output and acquisition streams")
	rootCmd.PersistentFlags().StringVar(&settings.Queue.Order, "order", viper.GetString("queue.order"), "Stimulus ordering: fifo, interleaved, random, blocked-random, grouped, blocked")
	rootCmd.PersistentFlags().IntVar(&settings.Queue.Trials, "trials", viper.GetInt("queue.trials"), "Trials per queued token")
	rootCmd.PersistentFlags().Float64Var(&settings.Queue.ITI, "iti", viper.GetFloat64("queue.iti"), "Intertrial interval in seconds")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}

	return nil
}
