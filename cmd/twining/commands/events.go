package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/HendryAvila/twining/internal/config"
	"github.com/HendryAvila/twining/internal/notify"
	"github.com/HendryAvila/twining/internal/printer"
)

var (
	eventsHistory int
	eventsFollow  bool
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Show change events published to Redis",
	Long: `Print recent twining change events from the Redis history list, then
optionally follow the live channel. Requires notify.redis_addr in
.twining/config.yml.`,
	RunE: runEvents,
}

func init() {
	eventsCmd.Flags().IntVarP(&eventsHistory, "number", "n", 20, "How many recent events to show")
	eventsCmd.Flags().BoolVarP(&eventsFollow, "follow", "f", false, "Keep printing new events")
	rootCmd.AddCommand(eventsCmd)
}

func runEvents(cmd *cobra.Command, args []string) error {
	root, err := projectRoot()
	if err != nil {
		return err
	}
	cfg, err := config.Load(config.Dir(root))
	if err != nil {
		return printer.Error("could not load config", err.Error(), nil)
	}
	if cfg.Notify.RedisAddr == "" {
		return printer.Error("event publishing is disabled", "notify.redis_addr is not set", []string{
			"Set notify.redis_addr in .twining/config.yml",
			"Restart the MCP server so it starts publishing",
		})
	}

	pub, err := notify.NewRedisPublisher(&redis.Options{Addr: cfg.Notify.RedisAddr}, cfg.Notify.Channel)
	if err != nil {
		return err
	}
	defer pub.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := pub.Ping(ctx); err != nil {
		return printer.Error("cannot reach Redis", err.Error(), []string{
			fmt.Sprintf("Check that Redis is listening on %s", cfg.Notify.RedisAddr),
		})
	}

	history, err := pub.History(ctx, eventsHistory)
	if err != nil {
		return err
	}
	// History is newest first; print oldest first.
	for i := len(history) - 1; i >= 0; i-- {
		printEvent(history[i])
	}
	if !eventsFollow {
		return nil
	}

	ch, err := pub.Subscribe(ctx)
	if err != nil {
		return err
	}
	for ev := range ch {
		printEvent(ev)
	}
	return nil
}

func printEvent(ev notify.Event) {
	at := ev.At
	if t, err := time.Parse(time.RFC3339Nano, ev.At); err == nil {
		at = t.Local().Format("15:04:05")
	}
	fmt.Printf("%s  %-22s %s\n", at, ev.Event, string(ev.Payload))
}
