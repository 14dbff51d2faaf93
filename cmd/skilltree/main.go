// cmd/skilltree/main.go
//
// Entry point for the skilltree CLI. Every command works on a project
// directory holding tree.svg, the taxonomy and the .skilltree/ state folder.
//
// Flow:
// 1. Load .skilltree/config.yaml (defaults when absent)
// 2. Open the zap-backed project log
// 3. Run the command; the log is flushed on the way out

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kingrea/skilltree/internal/config"
	"github.com/kingrea/skilltree/internal/logging"
)

var (
	projectDir string
	verbose    bool

	cfg    *config.Config
	logger *logging.Logger
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "skilltree",
		Short: "Keep a skill-tree SVG in sync with stored scores",
		Long: `skilltree paints a competency tree from the scores stored for each
skill code: cables light up with the best score they carry, completed nodes
glow in their group color, segmented gauges fill up and fans spin faster as
their group progresses.

Render once:           skilltree render --out tree.out.svg
Live server:           skilltree serve
Terminal panel:        skilltree panel
Edit a score:          skilltree score set AC11 80`,
		SilenceUsage:      true,
		PersistentPreRunE: initProject,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Close()
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&projectDir, "dir", "C", "", "project directory (default: current directory)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(
		initCmd(),
		renderCmd(),
		serveCmd(),
		panelCmd(),
		scoreCmd(),
		exportCmd(),
		logCmd(),
		findCmd(),
		parcoursCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func initProject(cmd *cobra.Command, args []string) error {
	dir := projectDir
	if dir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("get working directory: %w", err)
		}
		dir = cwd
	}
	loaded, err := config.Load(dir)
	if err != nil {
		return err
	}
	cfg = loaded

	level := cfg.Project.Logging.Level
	if verbose {
		level = "debug"
	}
	l, err := logging.New(cfg.ProjectDir, level)
	if err != nil {
		return err
	}
	logger = l
	logger.Debugf("skilltree: %s in %s", cmd.Name(), cfg.ProjectDir)
	return nil
}
