// Command modalsync-demo drives a sync session between a simulated host
// editor and a simulated modal engine in the terminal.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/sync/errgroup"

	"github.com/iw2rmb/modalsync"
	"github.com/iw2rmb/modalsync/config"
	"github.com/iw2rmb/modalsync/internal/sim"
	"github.com/iw2rmb/modalsync/internal/telemetry"
	"github.com/iw2rmb/modalsync/pane"
	"github.com/iw2rmb/modalsync/session"
)

const testSource = "declare function test(a: number): void;\n\ntest(\"\")\n"

const aSource = "export const a = \"blah\";\n\nexport const b = \"blah\";\n\nexport function someFunc(): void;\n"

func documents() map[string]pane.Document {
	var b strings.Builder
	b.WriteString(testSource)
	for i := 4; i <= 200; i++ {
		fmt.Fprintf(&b, "// filler line %d\n", i)
	}
	return map[string]pane.Document{
		"test.ts": {ID: "test.ts", Text: b.String()},
		"a.ts":    {ID: "a.ts", Text: aSource},
	}
}

func main() {
	var (
		cfgPath = flag.String("config", "", "path to a TOML config file")
		height  = flag.Int("height", 16, "visible lines per pane")
		latency = flag.Duration("latency", 15*time.Millisecond, "simulated round-trip latency")
		version = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *version {
		fmt.Println(modalsync.UserAgent())
		return
	}
	if err := run(*cfgPath, *height, *latency); err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
}

func run(cfgPath string, height int, latency time.Duration) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	cfg.Viewport.DefaultHeight = height

	logger, logs, err := telemetry.NewLogger(cfg.Log, nil)
	if err != nil {
		return err
	}

	host := sim.NewHost(height)
	engine := sim.NewEngine(height, cfg.Viewport.Margin)
	host.Latency, engine.Latency = latency, latency

	s := session.New(host, engine, session.Options{Config: cfg, Logger: logger})
	host.Bind(s)
	engine.Bind(s)

	docs := documents()
	host.Open("main", docs["test.ts"], pane.RolePrimary)
	host.Activate("main")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return s.Run(ctx) })
	g.Go(func() error {
		defer cancel()
		p := tea.NewProgram(newModel(host, engine, s, logs, docs), tea.WithAltScreen(), tea.WithContext(ctx))
		_, err := p.Run()
		if errors.Is(err, tea.ErrProgramKilled) {
			return nil
		}
		return err
	})
	return g.Wait()
}
