package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/kingrea/skilltree/internal/color"
	"github.com/kingrea/skilltree/internal/config"
	"github.com/kingrea/skilltree/internal/dom"
	"github.com/kingrea/skilltree/internal/logbook"
	"github.com/kingrea/skilltree/internal/motion"
	"github.com/kingrea/skilltree/internal/store"
	"github.com/kingrea/skilltree/internal/taxonomy"
	"github.com/kingrea/skilltree/internal/wiring"
)

const scoreJournal = "scores.log"

func openStore(c *config.Config) (store.Store, error) {
	s, err := store.Open(c.Project.Store.Backend, c.StorePath(), store.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", c.Project.Store.Backend, err)
	}
	return s, nil
}

func loadTree(c *config.Config) (*dom.Document, error) {
	doc, err := dom.Load(c.TreePath())
	if err != nil {
		return nil, fmt.Errorf("load tree: %w", err)
	}
	if doc.Root() == nil {
		return nil, fmt.Errorf("load tree: %s has no <svg> element", c.TreePath())
	}
	return doc, nil
}

// loadTaxonomy returns nil when the project has no taxonomy file; passes then
// fall back to element colors.
func loadTaxonomy(c *config.Config) (*taxonomy.Taxonomy, error) {
	tax, err := taxonomy.Load(c.TaxonomyPath())
	if errors.Is(err, fs.ErrNotExist) {
		logger.Warnf("skilltree: no taxonomy at %s", c.TaxonomyPath())
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load taxonomy: %w", err)
	}
	return tax, nil
}

func openLogbook(c *config.Config) (*logbook.Logbook, error) {
	return logbook.New(filepath.Join(c.LogsDir(), scoreJournal))
}

func controllerOptions(c *config.Config, extra ...wiring.Option) []wiring.Option {
	engine := c.Project.Engine
	opts := []wiring.Option{
		wiring.WithLogger(logger),
		wiring.WithCurve(motion.Curve{Power: engine.AccelerationPower, MaxSpeed: engine.MaxSpeed}),
		wiring.WithMotion(motion.NewRegistry(motion.WithWindows(engine.EaseWindow, engine.StopWindow))),
		wiring.WithFrameInterval(engine.FrameInterval),
	}
	if p, ok := color.ParsePrecedence(engine.ColorPrecedence); ok {
		opts = append(opts, wiring.WithPrecedence(p))
	}
	return append(opts, extra...)
}

func writeOutput(path string, data []byte) error {
	if path == "" || path == "-" {
		_, err := os.Stdout.Write(data)
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
