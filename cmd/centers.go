package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vladse1/CHP/internal/cad"
)

var centersCmd = &cobra.Command{
	Use:   "centers",
	Short: "List communications centers from the live page",
	Long:  "Fetches the CAD page and prints the dropdown's communications centers, in page order. Use these names for cad.centers.",
	RunE: func(cmd *cobra.Command, args []string) error {
		source := cad.New(cad.Options{
			PageURL:    cfg.CAD.PageURL,
			Timeout:    cfg.CAD.Timeout,
			MaxRetries: cfg.CAD.MaxRetries,
			RateLimit:  cfg.CAD.RateLimit,
		})

		centers, err := source.Centers(cmd.Context())
		if err != nil {
			return err
		}
		for _, name := range centers {
			fmt.Println(name)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(centersCmd)
}
