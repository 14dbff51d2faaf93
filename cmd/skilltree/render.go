package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kingrea/skilltree/internal/config"
	"github.com/kingrea/skilltree/internal/parcours"
	"github.com/kingrea/skilltree/internal/wiring"
)

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the .skilltree directory and default config",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.InitDir(cfg.ProjectDir); err != nil {
				return fmt.Errorf("init: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "initialized %s\n", cfg.ProjectConfigPath())
			return nil
		},
	}
}

func renderCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Run one synchronization pass and write the styled SVG",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			doc, err := loadTree(cfg)
			if err != nil {
				return err
			}
			tax, err := loadTaxonomy(cfg)
			if err != nil {
				return err
			}
			if choice, ok := parcours.Saved(s); ok {
				parcours.Filter(doc.Root(), choice)
			}

			var result wiring.PassResult
			ctrl := wiring.New(s, controllerOptions(cfg, wiring.WithObserver(func(r wiring.PassResult) {
				result = r
			}))...)
			defer ctrl.Close()
			if err := ctrl.Init(context.Background(), doc.Root(), tax); err != nil {
				return fmt.Errorf("render: %w", err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "%d bundles, %d atomics, %d segments, %d aggregates, %d failures\n",
				result.Bundles, result.Atomics, result.Segments, result.Aggregates, result.Failures)
			return writeOutput(out, []byte(doc.String()))
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "-", "output file (- for stdout)")
	return cmd
}
