package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kingrea/skilltree/internal/dom"
	"github.com/kingrea/skilltree/internal/eventbridge"
	"github.com/kingrea/skilltree/internal/motion"
	"github.com/kingrea/skilltree/internal/parcours"
	"github.com/kingrea/skilltree/internal/store"
	"github.com/kingrea/skilltree/internal/wiring"
)

const (
	serverSource  = "server"
	minFrameTick  = 50 * time.Millisecond
	shutdownGrace = 3 * time.Second
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Keep the tree synchronized and serve it with live events",
		Long: `serve loads the tree, runs a first pass and then re-runs passes whenever a
score changes: through the store (another process writing the same file or
database), through POST /events or through the /ws websocket.

The current tree is served at /tree.svg. Every pass and every spinner frame
is pushed to websocket clients as a wiring:synced event.`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	router := eventbridge.NewRouter(eventbridge.RouterWithLogger(logger))
	hub := eventbridge.NewHub(eventbridge.HubWithLogger(logger), eventbridge.HubWithProcessor(router))
	sess := &session{store: s, hub: hub}
	ctrl := wiring.New(s, controllerOptions(cfg, wiring.WithObserver(sess.synced))...)
	sess.ctrl = ctrl
	defer ctrl.Close()

	changes := s.Subscribe()
	defer changes.Close()
	scores := router.Subscribe(eventbridge.TypeScoreUpdated)
	defer scores.Close()
	tracks := router.Subscribe(eventbridge.TypeTrackSelected)
	defer tracks.Close()
	live := router.Subscribe(eventbridge.AllTopics)

	if err := ctrl.Init(ctx, doc.Root(), tax); err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	settings := eventbridge.SettingsFromConfig(cfg)
	server := eventbridge.NewServer(settings,
		eventbridge.WithProcessor(router),
		eventbridge.WithLogger(logger),
		eventbridge.WithHub(hub),
		eventbridge.WithSnapshot(ctrl.Snapshot),
	)
	if settings.Enabled {
		if err := server.Start(ctx); err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "serving %s/tree.svg (ws: %s/ws)\n", server.BaseURL(), server.BaseURL())
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.Warnf("serve: shutdown: %v", err)
			}
		}()
	} else {
		logger.Printf("serve: bridge disabled, syncing from the store only")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := ctrl.Run(gctx, changes.Changes)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	if w, ok := s.(store.Watcher); ok {
		g.Go(func() error { return w.Watch(gctx) })
	}
	g.Go(func() error {
		hub.Run(gctx, live)
		return nil
	})
	g.Go(func() error {
		sess.consume(gctx, scores, tracks)
		return nil
	})
	g.Go(func() error {
		sess.animate(gctx, frameTick(cfg.Project.Engine.FrameInterval))
		return nil
	})

	err = g.Wait()
	logger.Printf("serve: stopped after %d passes", ctrl.Passes())
	return err
}

func frameTick(d time.Duration) time.Duration {
	if d < minFrameTick {
		return minFrameTick
	}
	return d
}

// session applies bridge events to one controller and reports its passes.
type session struct {
	store store.Store
	ctrl  *wiring.Controller
	hub   *eventbridge.Hub
}

func (s *session) consume(ctx context.Context, scores, tracks eventbridge.Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-scores.Events:
			if !ok {
				return
			}
			s.applyScore(evt)
		case evt, ok := <-tracks.Events:
			if !ok {
				return
			}
			s.applyTrack(evt)
		}
	}
}

// applyScore requests a pass for a score announced by another process. A
// memory store cannot see that process's write, so the value is copied in
// and the resulting store change requests the pass.
func (s *session) applyScore(evt eventbridge.Event) {
	d, err := evt.Score()
	if err != nil {
		logger.Warnf("serve: %v", err)
		return
	}
	if m, ok := s.store.(*store.MemoryStore); ok && d.Code != "" {
		err := m.ApplyRemote(d.Code, strconv.Itoa(d.Value))
		if err == nil {
			return
		}
		logger.Warnf("serve: apply %s: %v", d.Code, err)
	}
	s.ctrl.Notify(wiring.EventScoreUpdated)
}

func (s *session) applyTrack(evt eventbridge.Event) {
	d, err := evt.Track()
	if err != nil {
		logger.Warnf("serve: %v", err)
		return
	}
	choice, ok := parcours.Parse(d.Choice)
	if !ok {
		logger.Warnf("serve: ignoring unknown track %q", d.Choice)
		return
	}
	if m, ok := s.store.(*store.MemoryStore); ok {
		if choice == parcours.All {
			err = m.RemoveRemote(parcours.StorageKey)
		} else {
			err = m.ApplyRemote(parcours.StorageKey, string(choice))
		}
		if err != nil {
			logger.Warnf("serve: apply track: %v", err)
		}
	}
	var hidden int
	s.ctrl.Do(func(root *dom.Element) {
		hidden = parcours.Filter(root, choice)
	})
	logger.Debugf("serve: track %s hides %d nodes", choice, hidden)
	s.ctrl.Notify(wiring.EventTrackSelected)
}

func (s *session) synced(r wiring.PassResult) {
	fans := make([]eventbridge.FanDetail, 0, len(r.Fans))
	for _, f := range r.Fans {
		codes := make([]string, len(f.Codes))
		for i, c := range f.Codes {
			codes[i] = string(c)
		}
		fans = append(fans, eventbridge.FanDetail{
			ID:     f.ID,
			Codes:  codes,
			Ratio:  f.Ratio,
			Target: f.Target,
			Speed:  f.Frame.Speed,
			State:  string(f.Frame.State),
		})
	}
	s.broadcast(eventbridge.SyncDetail{Pass: r.Pass, Failures: r.Failures, Fans: fans})
}

// animate pushes spinner frames while any fan is changing speed.
func (s *session) animate(ctx context.Context, tick time.Duration) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			frames := s.ctrl.Motion().Frames()
			if !moving(frames) {
				continue
			}
			fans := make([]eventbridge.FanDetail, len(frames))
			for i, f := range frames {
				fans[i] = eventbridge.FanDetail{ID: f.ID, Target: f.Target, Speed: f.Speed, State: string(f.State)}
			}
			s.broadcast(eventbridge.SyncDetail{Pass: s.ctrl.Passes(), Fans: fans})
		}
	}
}

func moving(frames []motion.Frame) bool {
	for _, f := range frames {
		if f.State == motion.StateEasing || f.State == motion.StateDecelerating {
			return true
		}
	}
	return false
}

// broadcast goes straight to the hub: synced frames are not routed, so they
// never pile up in a topic backlog.
func (s *session) broadcast(detail eventbridge.SyncDetail) {
	if s.hub == nil {
		return
	}
	evt, err := eventbridge.NewEvent(eventbridge.TypeSynced, serverSource, detail)
	if err != nil {
		logger.Warnf("serve: %v", err)
		return
	}
	s.hub.Broadcast(evt)
}
