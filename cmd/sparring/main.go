package main

import (
	"context"
	"flag"
	"maps"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/pterm/pterm"

	"github.com/punchcam/backend/internal/sparring"
)

const (
	defaultRate     = 10.0
	defaultDuration = 30 * time.Second
)

func main() {
	var (
		baseURL  = flag.String("url", "ws://localhost:8000", "Base URL of the server")
		player   = flag.String("player", "sparring-bot", "Player id to join as")
		name     = flag.String("name", "Sparring Bot", "Display name")
		pattern  = flag.String("pattern", sparring.PatternMixed, "Pose pattern: "+strings.Join(sparring.Patterns(), ", "))
		rate     = flag.Float64("rate", defaultRate, "Frames per second")
		duration = flag.Duration("duration", defaultDuration, "How long to stream")
		start    = flag.Bool("start", false, "Send start_game after joining")
		verbose  = flag.Bool("verbose", false, "Print every update and detection")
	)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stats, err := sparring.Run(ctx, sparring.Config{
		URL:      *baseURL,
		PlayerID: *player,
		Name:     *name,
		Pattern:  *pattern,
		Rate:     *rate,
		Duration: *duration,
		Start:    *start,
		Verbose:  *verbose,
	})
	if err != nil {
		pterm.Error.Printfln("sparring failed: %v", err)
		os.Exit(1)
	}

	printSummary(stats)
}

func printSummary(stats sparring.Stats) {
	body := pterm.Sprintfln("frames sent: %d", stats.FramesSent) +
		pterm.Sprintfln("detections:  %d", stats.Detections) +
		pterm.Sprintfln("updates:     %d", stats.Updates) +
		pterm.Sprintfln("pongs:       %d", stats.Pongs) +
		pterm.Sprintfln("errors:      %d", stats.Errors)

	if snap := stats.Final; snap != nil {
		body += pterm.Sprintfln("\n%s round %d, v%d", snap.State, snap.CurrentRound, snap.Version)
		for _, id := range slices.Sorted(maps.Keys(snap.Players)) {
			p := snap.Players[id]
			body += pterm.Sprintfln("%s: %d hp, %d pts", pterm.LightCyan(p.Name), p.Health, p.Score)
		}
		if snap.WinnerID != "" {
			if w, ok := snap.Players[snap.WinnerID]; ok {
				body += pterm.Sprintfln("winner: %s", pterm.LightGreen(w.Name))
			}
		}
	}

	box := pterm.DefaultBox.
		WithHorizontalPadding(4).
		WithTopPadding(1).
		WithBottomPadding(1).
		WithTitle(pterm.LightGreen("|SPARRING|")).
		WithTitleTopCenter()
	pterm.Println(box.Sprint(strings.TrimRight(body, "\n")))
}
