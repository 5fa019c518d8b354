package main

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pawsitive/pawsync/internal/daylog"
	"github.com/pawsitive/pawsync/internal/gateway"
	"github.com/pawsitive/pawsync/internal/lobby"
	"github.com/pawsitive/pawsync/internal/notify"
	"github.com/pawsitive/pawsync/internal/schema"
	"github.com/pawsitive/pawsync/internal/summary"
	"github.com/pawsitive/pawsync/internal/sync"
)

// maxPhotoBytes bounds a single photo file before encoding.
const maxPhotoBytes = 4 << 20

var dayCmd = &cobra.Command{
	Use:     "day",
	GroupID: "sessions",
	Short:   "View and update a day's checklist",
	Long: `View and update the log of one day of a sitting.

Days are numbered from 1. Without --day the current day is used, clamped to
the first or last day when the sitting has not started or has ended.

Example usage:
  pawsync day show SARAH-42
  pawsync day toggle SARAH-42 --slot morning --dog Rex --activity feeding
  pawsync day complete SARAH-42 --slot dinner --day 2
  pawsync day comment SARAH-42 --dog Bella --text "Ate everything"`,
}

// dayTarget is a mounted engine and the resolved day it edits.
type dayTarget struct {
	engine *sync.Engine
	index  int
	date   string
}

// openDay mounts the session named by args[0] and resolves --day.
func openDay(cmd *cobra.Command, gw gateway.Gateway, id string) dayTarget {
	e := mountEngine(cmd.Context(), gw, id)
	day, _ := cmd.Flags().GetInt("day")
	idx, date, err := dayDate(e.Snapshot(), day, time.Now())
	if err != nil {
		_ = e.Close()
		fatal("%w", err)
	}
	return dayTarget{engine: e, index: idx, date: date}
}

// ===== show =====

var dayShowCmd = &cobra.Command{
	Use:   "show CODE",
	Short: "Show the checklist for a day",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		gw, closeGateway := openGateway(false)
		defer closeGateway()

		id := lobby.NormalizeCode(args[0])
		s, err := gw.Get(cmd.Context(), id)
		if err != nil {
			if gateway.IsNotFound(err) {
				fatal("session %s not found", id)
			}
			fatal("failed to load session: %w", err)
		}
		day, _ := cmd.Flags().GetInt("day")
		idx, date, err := dayDate(s, day, time.Now())
		if err != nil {
			fatal("%w", err)
		}
		fmt.Println(renderDay(s, idx, date))
	},
}

func renderDay(s *schema.Session, idx int, date string) string {
	log := daylog.LogFor(s, date)
	names := s.DogNames()
	done, total := daylog.Progress(log, names)

	var b strings.Builder
	fmt.Fprintf(&b, "%s  %s  %s\n", headerStyle.Render(fmt.Sprintf("Day %d of %d", idx+1, s.TotalDays)),
		date, RenderMuted(fmt.Sprintf("%d/%d done", done, total)))

	for _, slot := range schema.TimeSlots {
		mark := " "
		if daylog.SlotComplete(log, slot, names) {
			mark = RenderPass("✓")
		}
		var sb strings.Builder
		fmt.Fprintf(&sb, "%s %s %s\n", mark, RenderAccent(slot.Label), RenderMuted(slot.TimeRange))
		for _, dog := range s.Dogs {
			parts := make([]string, len(slot.Activities))
			for i, act := range slot.Activities {
				parts[i] = renderTask(log, schema.TaskID(date, slot.ID, dog.Name, act), string(act))
			}
			fmt.Fprintf(&sb, "  %-12s %s\n", RenderDog(dog), strings.Join(parts, "  "))
		}
		b.WriteString(boxStyle.Render(strings.TrimRight(sb.String(), "\n")) + "\n")
	}

	for _, dog := range s.Dogs {
		if c := log.Comments[dog.Name]; c != "" {
			fmt.Fprintf(&b, "%s: %s\n", RenderDog(dog), c)
		}
	}
	if n := len(log.Photos); n > 0 {
		fmt.Fprintf(&b, "Photos: %d/%d\n", n, schema.MaxPhotos)
	}
	if log.AISummary != "" {
		fmt.Fprintf(&b, "\n%s\n%s\n", headerStyle.Render("Summary"), log.AISummary)
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderTask(log *schema.DayLog, taskID, label string) string {
	if !log.Tasks[taskID] {
		return RenderMuted("[ ] " + label)
	}
	s := "[x] " + label
	if ms, ok := log.TaskTimestamps[taskID]; ok {
		s += " " + time.UnixMilli(ms).Format("3:04 PM")
	}
	return RenderPass(s)
}

// ===== toggle / complete =====

var dayToggleCmd = &cobra.Command{
	Use:   "toggle CODE",
	Short: "Toggle one task",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		slot := mustSlot(cmd)
		dog, _ := cmd.Flags().GetString("dog")
		actName, _ := cmd.Flags().GetString("activity")
		act, ok := schema.ParseActivity(actName)
		if !ok {
			fatal("unknown activity %q (use bathroom or feeding)", actName)
		}

		gw, closeGateway := openGateway(false)
		defer closeGateway()
		t := openDay(cmd, gw, args[0])
		ctx := cmd.Context()

		if !hasDog(t.engine.Snapshot(), dog) {
			_ = t.engine.Close()
			fatal("no dog named %q in session", dog)
		}
		done, err := t.engine.ToggleTask(ctx, t.date, schema.TaskID(t.date, slot.ID, dog, act))
		if err != nil {
			_ = t.engine.Close()
			fatal("%w", err)
		}
		finish(ctx, t.engine)

		state := RenderMuted("not done")
		if done {
			state = RenderPass("done")
		}
		fmt.Printf("%s %s for %s is %s\n", slot.Label, act, dog, state)
	},
}

var dayCompleteCmd = &cobra.Command{
	Use:   "complete CODE",
	Short: "Mark every task in a time slot done for all dogs",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		slot := mustSlot(cmd)

		gw, closeGateway := openGateway(false)
		defer closeGateway()
		t := openDay(cmd, gw, args[0])
		ctx := cmd.Context()

		n, err := t.engine.CompleteAllInSlot(ctx, t.date, slot.ID)
		if err != nil {
			_ = t.engine.Close()
			fatal("%w", err)
		}
		finish(ctx, t.engine)
		fmt.Printf("%s %s complete (%d task(s) updated)\n", RenderPass("✓"), slot.Label, n)
	},
}

func mustSlot(cmd *cobra.Command) schema.TimeSlot {
	id, _ := cmd.Flags().GetString("slot")
	slot, ok := schema.SlotByID(id)
	if !ok {
		ids := make([]string, len(schema.TimeSlots))
		for i, s := range schema.TimeSlots {
			ids[i] = s.ID
		}
		fatal("unknown time slot %q (use one of %s)", id, strings.Join(ids, ", "))
	}
	return slot
}

func hasDog(s *schema.Session, name string) bool {
	for _, d := range s.Dogs {
		if d.Name == name {
			return true
		}
	}
	return false
}

// ===== comment =====

var dayCommentCmd = &cobra.Command{
	Use:   "comment CODE",
	Short: "Set the note for one dog",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		dog, _ := cmd.Flags().GetString("dog")
		text, _ := cmd.Flags().GetString("text")

		gw, closeGateway := openGateway(false)
		defer closeGateway()
		t := openDay(cmd, gw, args[0])
		ctx := cmd.Context()

		if err := t.engine.SetComment(ctx, t.date, dog, text); err != nil {
			_ = t.engine.Close()
			fatal("%w", err)
		}
		finish(ctx, t.engine)
		fmt.Printf("%s Saved note for %s on %s\n", RenderPass("✓"), dog, t.date)
	},
}

// ===== photos =====

var dayPhotoCmd = &cobra.Command{
	Use:   "photo",
	Short: "Add or remove a day's photos",
}

var dayPhotoAddCmd = &cobra.Command{
	Use:   "add CODE FILE...",
	Short: "Attach image files to a day",
	Args:  cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		photos := make([]string, 0, len(args)-1)
		for _, path := range args[1:] {
			p, err := encodePhoto(path)
			if err != nil {
				fatal("%w", err)
			}
			photos = append(photos, p)
		}

		gw, closeGateway := openGateway(false)
		defer closeGateway()
		t := openDay(cmd, gw, args[0])
		ctx := cmd.Context()

		n, err := t.engine.AddPhotos(ctx, t.date, photos...)
		if err != nil {
			_ = t.engine.Close()
			fatal("%w", err)
		}
		finish(ctx, t.engine)
		fmt.Printf("%s Added %d photo(s)\n", RenderPass("✓"), n)
		if n < len(photos) {
			fmt.Printf("%s %d skipped: a day holds at most %d photos\n", RenderWarn("⚠"), len(photos)-n, schema.MaxPhotos)
		}
	},
}

// encodePhoto reads an image file into a data URI.
func encodePhoto(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read photo: %w", err)
	}
	if len(data) > maxPhotoBytes {
		return "", fmt.Errorf("photo %s is larger than %d MB", path, maxPhotoBytes>>20)
	}
	mime := http.DetectContentType(data)
	if !strings.HasPrefix(mime, "image/") {
		return "", fmt.Errorf("%s is not an image (%s)", path, mime)
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

var dayPhotoRmCmd = &cobra.Command{
	Use:   "rm CODE",
	Short: "Remove a photo by its 1-based position",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		index, _ := cmd.Flags().GetInt("index")

		gw, closeGateway := openGateway(false)
		defer closeGateway()
		t := openDay(cmd, gw, args[0])
		ctx := cmd.Context()

		if err := t.engine.RemovePhoto(ctx, t.date, index-1); err != nil {
			_ = t.engine.Close()
			fatal("%w", err)
		}
		finish(ctx, t.engine)
		fmt.Printf("%s Removed photo %d\n", RenderPass("✓"), index)
	},
}

// ===== summarize =====

var daySummarizeCmd = &cobra.Command{
	Use:   "summarize CODE",
	Short: "Generate and store a summary of the day",
	Long: `Generate a short summary of the day with Claude and store it in the log.

Requires ai.api_key (or PAWSYNC_AI_API_KEY).`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		gen, err := summary.NewClaude(summary.ClaudeConfig{
			APIKey:    cfg.AI.APIKey,
			Model:     cfg.AI.Model,
			MaxTokens: int64(cfg.AI.MaxTokens),
		})
		if errors.Is(err, summary.ErrNoAPIKey) {
			fmt.Fprintln(os.Stderr, RenderWarn("API Key missing. Cannot generate summary."))
			os.Exit(1)
		}
		if err != nil {
			fatal("%w", err)
		}

		gw, closeGateway := openGateway(false)
		defer closeGateway()
		t := openDay(cmd, gw, args[0])
		ctx := cmd.Context()

		text, err := generateSummary(ctx, gen, t.engine.Snapshot(), t.date)
		if err != nil {
			_ = t.engine.Close()
			fatal("failed to generate summary: %w", err)
		}
		if err := t.engine.SetSummary(ctx, t.date, text); err != nil {
			_ = t.engine.Close()
			fatal("%w", err)
		}
		finish(ctx, t.engine)
		fmt.Println(boxStyle.Render(text))
	},
}

func generateSummary(ctx context.Context, gen summary.Generator, s *schema.Session, date string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()
	return gen.Summarize(ctx, summary.BuildDigest(s, date))
}

// ===== notify =====

var dayNotifyCmd = &cobra.Command{
	Use:   "notify CODE",
	Short: "Tell the owner a slot or activity is done",
	Long: `Compose an update for the owner.

With --slot the message announces the whole time slot; with --activity
(and optionally --dog) it announces one activity. By default an sms: link
is printed for a phone to open; --send delivers the text through Twilio
using TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN and TWILIO_FROM_NUMBER.

Example usage:
  pawsync day notify SARAH-42 --slot morning
  pawsync day notify SARAH-42 --activity "Evening walk" --dog Rex --send`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		slotID, _ := cmd.Flags().GetString("slot")
		activity, _ := cmd.Flags().GetString("activity")
		dog, _ := cmd.Flags().GetString("dog")
		send, _ := cmd.Flags().GetBool("send")
		if (slotID == "") == (activity == "") {
			fatal("pass exactly one of --slot or --activity")
		}

		gw, closeGateway := openGateway(false)
		defer closeGateway()

		id := lobby.NormalizeCode(args[0])
		s, err := gw.Get(cmd.Context(), id)
		if err != nil {
			fatal("failed to load session: %w", err)
		}
		phone := s.EmergencyContacts.Owner.Phone
		if notify.Digits(phone) == "" {
			fatal("session %s has no owner phone number", id)
		}

		var body string
		if slotID != "" {
			body = notify.SlotMessage(mustSlot(cmd).Label, s.DogNames())
		} else {
			body = notify.ActivityMessage(activity, dog)
		}

		if !send {
			fmt.Println(body)
			fmt.Println(notify.SMSLink(phone, body))
			return
		}
		tc, err := notify.LoadTwilioConfig()
		if err != nil {
			fatal("%w", err)
		}
		sender, err := notify.NewTwilio(tc, nil)
		if err != nil {
			fatal("%w", err)
		}
		if err := sender.Send(cmd.Context(), phone, body); err != nil {
			fatal("failed to send message: %w", err)
		}
		fmt.Printf("%s Sent to %s\n", RenderPass("✓"), notify.FormatPhone(phone))
	},
}

func init() {
	dayCmd.PersistentFlags().Int("day", 0, "Day number, starting at 1 (default today)")

	dayToggleCmd.Flags().String("slot", "", "Time slot id (morning, late_morning, dinner, bedtime)")
	dayToggleCmd.Flags().String("dog", "", "Dog name")
	dayToggleCmd.Flags().String("activity", "", "Activity: bathroom or feeding")
	dayCompleteCmd.Flags().String("slot", "", "Time slot id")
	dayCommentCmd.Flags().String("dog", "", "Dog name")
	dayCommentCmd.Flags().String("text", "", "Note text (empty clears it)")
	dayPhotoRmCmd.Flags().Int("index", 1, "Photo position, starting at 1")
	dayNotifyCmd.Flags().String("slot", "", "Announce a completed time slot")
	dayNotifyCmd.Flags().String("activity", "", "Announce one completed activity")
	dayNotifyCmd.Flags().String("dog", "", "Dog the activity was for")
	dayNotifyCmd.Flags().Bool("send", false, "Send through Twilio instead of printing an sms: link")

	dayPhotoCmd.AddCommand(dayPhotoAddCmd, dayPhotoRmCmd)
	dayCmd.AddCommand(dayShowCmd, dayToggleCmd, dayCompleteCmd, dayCommentCmd,
		dayPhotoCmd, daySummarizeCmd, dayNotifyCmd)
	rootCmd.AddCommand(dayCmd)
}
