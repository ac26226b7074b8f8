// Bag commands: record topic traffic into a bag, replay it, and inspect one.
package main

import (
	"fmt"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"nros/internal/record"
)

var (
	playImmediate bool
	playRate      float64
)

// recordCmd captures topic traffic into a bag file
var recordCmd = &cobra.Command{
	Use:   "record <bag> [topics...]",
	Short: "Record topic messages into a bag",
	Long: `Subscribes to the given topics (all topics when none are named) and
appends every message to the bag until interrupted.

Example:
  nros record run1.bag sonar/range motors/state`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRecord,
}

// playCmd replays a bag onto the bus
var playCmd = &cobra.Command{
	Use:   "play <bag>",
	Short: "Replay a bag onto the bus",
	Args:  cobra.ExactArgs(1),
	RunE:  runPlay,
}

// bagInfoCmd prints a bag's content summary
var bagInfoCmd = &cobra.Command{
	Use:   "bag-info <bag>",
	Short: "Show what a bag contains",
	Args:  cobra.ExactArgs(1),
	RunE:  runBagInfo,
}

func init() {
	playCmd.Flags().BoolVar(&playImmediate, "immediate", false, "replay without the recorded gaps")
	playCmd.Flags().Float64Var(&playRate, "rate", 1.0, "replay speed factor")
}

func runRecord(cmd *cobra.Command, args []string) error {
	conn, err := dialBus()
	if err != nil {
		return err
	}
	defer conn.Close()

	bag, err := record.Create(args[0])
	if err != nil {
		return err
	}
	defer bag.Close()

	rec, err := record.NewRecorder(conn, bag, args[1:]...)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if len(args) > 1 {
		fmt.Printf("recording %d topic(s) to %s (ctrl+c to stop)\n", len(args)-1, args[0])
	} else {
		fmt.Printf("recording all topics to %s (ctrl+c to stop)\n", args[0])
	}
	<-ctx.Done()

	if err := rec.Close(); err != nil {
		return err
	}
	fmt.Printf("recorded %d message(s)\n", rec.Count())
	return nil
}

func runPlay(cmd *cobra.Command, args []string) error {
	conn, err := dialBus()
	if err != nil {
		return err
	}
	defer conn.Close()

	bag, err := record.Open(args[0])
	if err != nil {
		return err
	}
	defer bag.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	n, err := record.Play(ctx, conn, bag, record.PlayOptions{
		Immediate: playImmediate,
		Rate:      playRate,
	})
	if err != nil {
		return err
	}
	fmt.Printf("replayed %d message(s)\n", n)
	return nil
}

func runBagInfo(cmd *cobra.Command, args []string) error {
	bag, err := record.Open(args[0])
	if err != nil {
		return err
	}
	defer bag.Close()

	s, err := bag.Summary()
	if err != nil {
		return err
	}

	fmt.Printf("bag      : %s\n", s.Path)
	fmt.Printf("messages : %d\n", s.Count)
	if s.Count > 0 {
		fmt.Printf("span     : %s -> %s (%s)\n",
			s.Start.Format(time.RFC3339), s.End.Format(time.RFC3339),
			s.End.Sub(s.Start).Round(time.Millisecond))
	}
	topics := make([]string, 0, len(s.Topics))
	for t := range s.Topics {
		topics = append(topics, t)
	}
	sort.Strings(topics)
	fmt.Println("topics   :")
	for _, t := range topics {
		fmt.Printf("  - %-25s : %d\n", t, s.Topics[t])
	}
	return nil
}
