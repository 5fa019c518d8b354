package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pawsitive/pawsync/internal/daylog"
	"github.com/pawsitive/pawsync/internal/sync"
)

var watchCmd = &cobra.Command{
	Use:     "watch CODE",
	GroupID: "sessions",
	Short:   "Follow live changes to a session",
	Long: `Follow a session and print every change as it arrives.

Works against the sqlite driver (changes made by other processes are picked
up from the database file) and the remote driver (pushed over WebSocket).

Example usage:
  pawsync watch SARAH-42
  pawsync watch SARAH-42 --store remote --url http://sitter-box:8080`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		gw, closeGateway := openGateway(true)
		defer closeGateway()

		e := mountEngine(ctx, gw, args[0])
		defer func() { _ = e.Close() }()

		s := e.Snapshot()
		fmt.Printf("%s Watching %s (%s). Press Ctrl+C to stop.\n", RenderAccent("🐾"), s.ID, s.SitterName)
		printProgress(e)

		for {
			select {
			case <-ctx.Done():
				fmt.Println("\nStopped.")
				return
			case ev, ok := <-e.Events():
				if !ok {
					return
				}
				if stop := printEvent(ev, e); stop {
					return
				}
			}
		}
	},
}

// printEvent reports one engine event and whether watching should stop.
func printEvent(ev sync.Event, e *sync.Engine) bool {
	stamp := RenderMuted(time.Now().Format("15:04:05"))
	switch ev.Type {
	case sync.EventRemoteUpdate:
		fmt.Printf("%s %s\n", stamp, RenderAccent("Updated"))
		printProgress(e)
	case sync.EventNotFound:
		fmt.Printf("%s %s session was deleted\n", stamp, RenderFail("✗"))
		return true
	case sync.EventErrored:
		fmt.Printf("%s %s %v\n", stamp, RenderFail("✗"), ev.Err)
		return true
	}
	return false
}

func printProgress(e *sync.Engine) {
	s := e.Snapshot()
	if s == nil {
		return
	}
	idx, date, err := dayDate(s, 0, time.Now())
	if err != nil {
		return
	}
	done, total := daylog.Progress(daylog.LogFor(s, date), s.DogNames())
	fmt.Printf("   Day %d (%s): %d/%d tasks done\n", idx+1, date, done, total)
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
