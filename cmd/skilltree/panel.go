package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/kingrea/skilltree/internal/dom"
	"github.com/kingrea/skilltree/internal/eventbridge"
	"github.com/kingrea/skilltree/internal/logbook"
	"github.com/kingrea/skilltree/internal/panel"
	"github.com/kingrea/skilltree/internal/parcours"
	"github.com/kingrea/skilltree/internal/skill"
	"github.com/kingrea/skilltree/internal/store"
	"github.com/kingrea/skilltree/internal/taxonomy"
	"github.com/kingrea/skilltree/internal/tui"
)

const pingTimeout = time.Second

// bridgeSink returns a client for a running serve, or nil so edits stay local.
func bridgeSink(ctx context.Context) eventbridge.EventProcessor {
	settings := eventbridge.SettingsFromConfig(cfg)
	if !settings.Enabled {
		return nil
	}
	client := eventbridge.NewClient(settings.URL())
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx); err != nil {
		logger.Debugf("skilltree: bridge not reachable at %s: %v", settings.URL(), err)
		return nil
	}
	logger.Printf("skilltree: announcing edits to %s", settings.URL())
	return client
}

// scoring bundles what the editing commands share.
type scoring struct {
	store store.Store
	tax   *taxonomy.Taxonomy
	book  *logbook.Logbook
	panel *panel.Panel
	sink  eventbridge.EventProcessor
}

func openScoring(ctx context.Context) (*scoring, error) {
	s, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	tax, err := loadTaxonomy(cfg)
	if err != nil {
		s.Close()
		return nil, err
	}
	book, err := openLogbook(cfg)
	if err != nil {
		s.Close()
		return nil, err
	}
	sink := bridgeSink(ctx)
	p := panel.New(s,
		panel.WithTaxonomy(tax),
		panel.WithSink(sink),
		panel.WithLogbook(book),
		panel.WithLogger(logger),
	)
	return &scoring{store: s, tax: tax, book: book, panel: p, sink: sink}, nil
}

func (sc *scoring) Close() error {
	return sc.store.Close()
}

func panelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "panel",
		Short: "Open the terminal scoring panel",
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := openScoring(cmd.Context())
			if err != nil {
				return err
			}
			defer sc.Close()

			opts := []tui.AppOption{
				tui.WithLogbook(sc.book),
				tui.WithTracks(parcours.NewSelector(sc.store, sc.sink, logger)),
			}
			if doc, err := loadTree(cfg); err == nil {
				opts = append(opts, tui.WithTree(doc.Root()))
			} else {
				logger.Warnf("skilltree: panel without tree: %v", err)
			}
			app := tui.NewApp(sc.panel, sc.tax.Skills(), opts...)
			_, err = tea.NewProgram(app, tea.WithAltScreen()).Run()
			return err
		},
	}
}

func scoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Read or write one skill score",
	}

	get := &cobra.Command{
		Use:   "get CODE",
		Short: "Print the stored score and note of CODE",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := openScoring(cmd.Context())
			if err != nil {
				return err
			}
			defer sc.Close()
			sel, err := sc.panel.Select(args[0], treeElement(args[0]), "")
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s: %d", sel.Code, sel.Name, sel.Score)
			if sel.Validated() {
				fmt.Fprint(out, " (validated)")
			}
			fmt.Fprintln(out)
			if sel.Note != "" {
				fmt.Fprintf(out, "  %s\n", sel.Note)
			}
			return nil
		},
	}

	var note string
	set := &cobra.Command{
		Use:   "set CODE VALUE",
		Short: "Save a score (0-100) and record it in the history",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := strconv.Atoi(strings.TrimSpace(args[1]))
			if err != nil {
				return fmt.Errorf("score: %q is not a whole number", args[1])
			}
			sc, err := openScoring(cmd.Context())
			if err != nil {
				return err
			}
			defer sc.Close()
			if _, err := sc.panel.Select(args[0], treeElement(args[0]), ""); err != nil {
				return err
			}
			if !cmd.Flags().Changed("note") {
				sel, _ := sc.panel.Active()
				note = sel.Note
			}
			entry, err := sc.panel.Save(value, note)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s = %d\n", entry.Code, entry.Value)
			return nil
		},
	}
	set.Flags().StringVarP(&note, "note", "n", "", "justification stored with the score")

	history := &cobra.Command{
		Use:   "history",
		Short: "List saved scores, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := openScoring(cmd.Context())
			if err != nil {
				return err
			}
			defer sc.Close()
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, e := range sc.panel.History() {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", e.Time.Local().Format("2006-01-02 15:04"), e.Code, e.Value, e.Note)
			}
			return w.Flush()
		},
	}

	cmd.AddCommand(get, set, history)
	return cmd
}

// treeElement finds the node of code in the tree so names and colors match
// what the tree shows. A missing tree is not an error here.
func treeElement(code string) *dom.Element {
	doc, err := loadTree(cfg)
	if err != nil {
		return nil
	}
	want := strings.ToUpper(strings.TrimSpace(code))
	for _, el := range doc.Root().All() {
		if strings.EqualFold(el.ID(), want) {
			return el
		}
	}
	return nil
}

func exportCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Dump every stored key as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer s.Close()
			data, err := panel.New(s).Export()
			if err != nil {
				return err
			}
			return writeOutput(out, append(data, '\n'))
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "-", "output file (- for stdout)")
	return cmd
}

func logCmd() *cobra.Command {
	var (
		lines int
		kind  string
	)
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show the score journal",
		RunE: func(cmd *cobra.Command, args []string) error {
			book, err := openLogbook(cfg)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if kind != "" {
				entries := book.Entries(logbook.Kind(strings.ToUpper(kind)))
				if lines > 0 && len(entries) > lines {
					entries = entries[len(entries)-lines:]
				}
				for _, e := range entries {
					fmt.Fprintf(out, "%s  %s\n", e.Time.Local().Format("2006-01-02 15:04"), e.Text)
				}
				return nil
			}
			n := lines
			if n <= 0 {
				n = math.MaxInt
			}
			tail, total := book.Tail(n)
			for _, line := range tail {
				fmt.Fprintln(out, line)
			}
			if total > len(tail) {
				fmt.Fprintf(cmd.ErrOrStderr(), "(%d of %d lines, %s)\n", len(tail), total, book.Path())
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 20, "number of lines (0 for all)")
	cmd.Flags().StringVarP(&kind, "kind", "k", "", "only score, track or note lines")
	return cmd
}

func findCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "find QUERY",
		Short: "Fuzzy-search skills by code or label",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer s.Close()
			tax, err := loadTaxonomy(cfg)
			if err != nil {
				return err
			}
			if tax == nil {
				return errors.New("find: the project has no taxonomy")
			}
			p := panel.New(s, panel.WithTaxonomy(tax))
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, h := range p.Search(strings.Join(args, " "), limit) {
				fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", h.Code, p.Score(skill.Code(h.Code)), h.Label, h.Group)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "l", 10, "maximum results (0 for all)")
	return cmd
}

func parcoursCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "parcours [dev|des|com|all]",
		Short:     "Show or choose the track that filters third-year skills",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"dev", "des", "com", "all"},
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer s.Close()
			out := cmd.OutOrStdout()
			if len(args) == 0 {
				current, ok := parcours.Saved(s)
				if !ok {
					current = parcours.All
				}
				fmt.Fprintln(out, current.Label())
				return nil
			}
			choice, err := parcours.NewSelector(s, bridgeSink(cmd.Context()), logger).Select(args[0])
			if err != nil {
				return err
			}
			if book, err := openLogbook(cfg); err == nil {
				if err := book.Track(string(choice)); err != nil {
					logger.Warnf("parcours: %v", err)
				}
			}
			fmt.Fprintln(out, choice.Label())
			return nil
		},
	}
}
