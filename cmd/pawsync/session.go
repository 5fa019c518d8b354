package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/pawsitive/pawsync/internal/backup"
	"github.com/pawsitive/pawsync/internal/daylog"
	"github.com/pawsitive/pawsync/internal/gateway"
	"github.com/pawsitive/pawsync/internal/lobby"
	"github.com/pawsitive/pawsync/internal/notify"
	"github.com/pawsitive/pawsync/internal/schema"
)

var sessionCmd = &cobra.Command{
	Use:     "session",
	GroupID: "sessions",
	Short:   "Create, list and manage sitting sessions",
}

// ===== create =====

var sessionCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new sitting session",
	Long: `Create a new sitting session and print its join code.

Without flags on a terminal, an interactive wizard asks for the details.

Example usage:
  pawsync session create
  pawsync session create --sitter Sarah --start "next friday" --days 3 \
      --dog Rex:blue --dog Bella --owner "Jo:555 123 4567"`,
	Run: func(cmd *cobra.Command, args []string) {
		var (
			d   lobby.Draft
			err error
		)
		if !anyChanged(cmd, "sitter", "start", "days", "dog", "owner", "secondary", "vet") && isTTY(os.Stdin) {
			d, err = runCreateWizard()
			if errors.Is(err, huh.ErrUserAborted) {
				fmt.Println("Cancelled.")
				return
			}
		} else {
			d, err = draftFromFlags(cmd)
		}
		if err != nil {
			fatal("%w", err)
		}

		gw, closeGateway := openGateway(false)
		defer closeGateway()

		s, err := newLobby(gw).Create(cmd.Context(), d)
		if err != nil {
			fatal("failed to create session: %w", err)
		}

		fmt.Printf("%s Created session %s\n", RenderPass("✓"), RenderAccent(s.ID))
		fmt.Printf("   %s, %d day(s) from %s\n", s.SitterName, s.TotalDays, s.StartDate)
		if u, err := lobby.ShareURL(cfg.Share.BaseURL, s.ID); err == nil {
			fmt.Printf("   Share: %s\n", u)
		}
	},
}

func anyChanged(cmd *cobra.Command, names ...string) bool {
	for _, n := range names {
		if cmd.Flags().Changed(n) {
			return true
		}
	}
	return false
}

func draftFromFlags(cmd *cobra.Command) (lobby.Draft, error) {
	f := cmd.Flags()
	sitter, _ := f.GetString("sitter")
	start, _ := f.GetString("start")
	days, _ := f.GetInt("days")
	dogs, _ := f.GetStringArray("dog")

	d := lobby.Draft{SitterName: sitter, TotalDays: days}
	var err error
	if d.StartDate, err = parseStartDate(start, time.Now()); err != nil {
		return d, err
	}
	for _, arg := range dogs {
		name, color, _ := strings.Cut(arg, ":")
		dog := schema.Dog{Name: strings.TrimSpace(name), Color: schema.DogColor(strings.ToLower(strings.TrimSpace(color)))}
		if dog.Color != "" {
			if _, ok := dogColors[dog.Color]; !ok {
				return d, fmt.Errorf("unknown color %q for %s (valid: %s)", color, dog.Name, colorList())
			}
		}
		d.Dogs = append(d.Dogs, dog)
	}
	for flag, c := range map[string]*schema.Contact{
		"owner":     &d.Contacts.Owner,
		"secondary": &d.Contacts.Secondary,
		"vet":       &d.Contacts.Vet,
	} {
		val, _ := f.GetString(flag)
		*c = parseContact(val)
	}
	return d, nil
}

// parseContact splits "name:phone". A value with no colon is a phone.
func parseContact(s string) schema.Contact {
	if s == "" {
		return schema.Contact{}
	}
	name, phone, ok := strings.Cut(s, ":")
	if !ok {
		name, phone = "", s
	}
	return schema.Contact{Name: strings.TrimSpace(name), Phone: notify.FormatPhone(phone)}
}

func colorList() string {
	names := make([]string, len(schema.Colors))
	for i, c := range schema.Colors {
		names[i] = string(c)
	}
	return strings.Join(names, ", ")
}

func runCreateWizard() (lobby.Draft, error) {
	var (
		sitter, start, days, dogs string
		owner, ownerPhone         string
		second, secondPhone       string
		vet, vetPhone             string
	)
	days = "1"
	start = "today"

	notEmpty := func(label string) func(string) error {
		return func(s string) error {
			if strings.TrimSpace(s) == "" {
				return fmt.Errorf("%s is required", label)
			}
			return nil
		}
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Sitter name").
				Value(&sitter).
				Validate(notEmpty("sitter name")),
			huh.NewInput().
				Title("Start date").
				Description("YYYY-MM-DD or a phrase like \"next friday\"").
				Value(&start).
				Validate(func(s string) error {
					_, err := parseStartDate(s, time.Now())
					return err
				}),
			huh.NewInput().
				Title("Number of days").
				Value(&days).
				Validate(func(s string) error {
					n, err := strconv.Atoi(strings.TrimSpace(s))
					if err != nil || n < 1 || n > schema.MaxDays {
						return fmt.Errorf("enter a number from 1 to %d", schema.MaxDays)
					}
					return nil
				}),
			huh.NewInput().
				Title("Dogs").
				Description(fmt.Sprintf("Comma separated, up to %d", schema.MaxDogs)).
				Value(&dogs).
				Validate(notEmpty("at least one dog")),
		),
		huh.NewGroup(
			huh.NewInput().Title("Owner name").Value(&owner),
			huh.NewInput().Title("Owner phone").Value(&ownerPhone),
			huh.NewInput().Title("Secondary contact name").Value(&second),
			huh.NewInput().Title("Secondary contact phone").Value(&secondPhone),
			huh.NewInput().Title("Vet name").Value(&vet),
			huh.NewInput().Title("Vet phone").Value(&vetPhone),
		).Title("Emergency contacts (optional)"),
	)
	if err := form.Run(); err != nil {
		return lobby.Draft{}, err
	}

	d := lobby.Draft{SitterName: sitter}
	d.TotalDays, _ = strconv.Atoi(strings.TrimSpace(days))
	var err error
	if d.StartDate, err = parseStartDate(start, time.Now()); err != nil {
		return d, err
	}
	for _, name := range strings.Split(dogs, ",") {
		if name = strings.TrimSpace(name); name != "" {
			d.Dogs = append(d.Dogs, schema.Dog{Name: name})
		}
	}
	d.Contacts = schema.Contacts{
		Owner:     schema.Contact{Name: owner, Phone: notify.FormatPhone(ownerPhone)},
		Secondary: schema.Contact{Name: second, Phone: notify.FormatPhone(secondPhone)},
		Vet:       schema.Contact{Name: vet, Phone: notify.FormatPhone(vetPhone)},
	}
	return d, nil
}

// ===== list =====

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions, newest first",
	Long: `List sessions, newest first.

By default only sittings that have not ended are shown.

Example usage:
  pawsync session list
  pawsync session list --all`,
	Run: func(cmd *cobra.Command, args []string) {
		all, _ := cmd.Flags().GetBool("all")

		gw, closeGateway := openGateway(false)
		defer closeGateway()

		metas, err := newLobby(gw).List(cmd.Context())
		if err != nil {
			fatal("failed to list sessions: %w", err)
		}
		if !all {
			metas = lobby.Active(metas, time.Now())
		}
		if len(metas) == 0 {
			fmt.Println(RenderMuted("No sessions. Create one with 'pawsync session create'."))
			return
		}
		fmt.Println(renderMetaTable(metas))
	},
}

func renderMetaTable(metas []schema.Meta) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(mutedStyle).
		Headers("CODE", "SITTER", "START", "DAYS", "DOGS").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return lipgloss.NewStyle().Bold(true).Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})
	for _, m := range metas {
		names := make([]string, len(m.Dogs))
		for i, d := range m.Dogs {
			names[i] = d.Name
		}
		t.Row(m.ID, m.SitterName, m.StartDate, strconv.Itoa(m.TotalDays), strings.Join(names, ", "))
	}
	return t.Render()
}

// ===== show =====

var sessionShowCmd = &cobra.Command{
	Use:   "show CODE",
	Short: "Show a session's details and progress",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		gw, closeGateway := openGateway(false)
		defer closeGateway()

		s, err := gw.Get(cmd.Context(), lobby.NormalizeCode(args[0]))
		if err != nil {
			if gateway.IsNotFound(err) {
				fatal("session %s not found", lobby.NormalizeCode(args[0]))
			}
			fatal("failed to load session: %w", err)
		}
		fmt.Println(renderSession(s, time.Now()))
	},
}

func renderSession(s *schema.Session, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s  %s\n", headerStyle.Render(s.ID), RenderMuted("sitter "+s.SitterName))

	dogs := make([]string, len(s.Dogs))
	for i, d := range s.Dogs {
		dogs[i] = RenderDog(d)
	}
	fmt.Fprintf(&b, "Dogs:     %s\n", strings.Join(dogs, ", "))
	end, _ := daylog.ResolveDate(s.StartDate, s.TotalDays-1)
	fmt.Fprintf(&b, "Dates:    %s to %s (%d days)\n", s.StartDate, end, s.TotalDays)

	if contacts := s.EmergencyContacts.All(); len(contacts) > 0 {
		b.WriteString("Contacts:\n")
		for _, c := range contacts {
			name := c.Name
			if name == "" {
				name = c.Label
			}
			fmt.Fprintf(&b, "  %-10s %s %s\n", c.Label, name, RenderMuted(c.Phone))
		}
	}

	today := daylog.Today(now)
	b.WriteString("\nProgress:\n")
	names := s.DogNames()
	for i := 0; i < s.TotalDays; i++ {
		date, err := daylog.CurrentDate(s, i)
		if err != nil {
			continue
		}
		done, total := daylog.Progress(daylog.LogFor(s, date), names)
		mark := RenderMuted("·")
		switch {
		case done == total:
			mark = RenderPass("✓")
		case done > 0:
			mark = RenderWarn("◐")
		}
		line := fmt.Sprintf("  %s Day %-2d %s  %d/%d", mark, i+1, date, done, total)
		if date == today {
			line += " " + RenderAccent("← today")
		}
		b.WriteString(line + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// ===== delete =====

var sessionDeleteCmd = &cobra.Command{
	Use:   "delete CODE",
	Short: "Delete a session and all of its logs",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id := lobby.NormalizeCode(args[0])
		yes, _ := cmd.Flags().GetBool("yes")
		if !yes {
			if !isTTY(os.Stdin) {
				fatal("refusing to delete %s without --yes", id)
			}
			fmt.Printf("Delete session %s? This cannot be undone. [y/N] ", RenderAccent(id))
			answer, _ := bufio.NewReader(os.Stdin).ReadString('\n')
			if a := strings.ToLower(strings.TrimSpace(answer)); a != "y" && a != "yes" {
				fmt.Println("Cancelled.")
				return
			}
		}

		gw, closeGateway := openGateway(false)
		defer closeGateway()

		if err := newLobby(gw).Delete(cmd.Context(), id); err != nil {
			fatal("failed to delete session: %w", err)
		}
		fmt.Printf("%s Deleted %s\n", RenderPass("✓"), id)
	},
}

// ===== export =====

var sessionExportCmd = &cobra.Command{
	Use:   "export CODE",
	Short: "Print the stored session document",
	Long: `Print the stored session document as JSON or YAML.

Example usage:
  pawsync session export SARAH-42 > sarah.json
  pawsync session export SARAH-42 --format yaml`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		format, _ := cmd.Flags().GetString("format")

		gw, closeGateway := openGateway(false)
		defer closeGateway()

		s, err := gw.Get(cmd.Context(), lobby.NormalizeCode(args[0]))
		if err != nil {
			fatal("failed to load session: %w", err)
		}
		if err := exportSession(os.Stdout, s, format); err != nil {
			fatal("%w", err)
		}
	},
}

func exportSession(w io.Writer, s *schema.Session, format string) error {
	doc, err := gateway.EncodeSession(s)
	if err != nil {
		return err
	}
	switch strings.ToLower(format) {
	case "json", "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(doc)
	default:
		return fmt.Errorf("unknown format %q (use json or yaml)", format)
	}
}

// ===== share =====

var sessionShareCmd = &cobra.Command{
	Use:   "share CODE",
	Short: "Print the join link and invite text",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		gw, closeGateway := openGateway(false)
		defer closeGateway()

		ctx, cancel := context.WithTimeout(cmd.Context(), loadTimeout)
		defer cancel()
		s, err := gw.Get(ctx, lobby.NormalizeCode(args[0]))
		if err != nil {
			fatal("failed to load session: %w", err)
		}
		u, err := lobby.ShareURL(cfg.Share.BaseURL, s.ID)
		if err != nil {
			fatal("%w", err)
		}
		fmt.Println(lobby.ShareText(s))
		fmt.Println(u)
	},
}

// ===== backup / restore =====

var sessionBackupCmd = &cobra.Command{
	Use:   "backup FILE",
	Short: "Write every session to a JSONL file",
	Long: `Write every stored session, logs included, to a JSONL file.

Example usage:
  pawsync session backup ~/pawsync-backup.jsonl
  pawsync session restore ~/pawsync-backup.jsonl --store remote --url http://host:8080`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		gw, closeGateway := openGateway(false)
		defer closeGateway()

		res, err := backup.DumpFile(cmd.Context(), gw, args[0])
		if err != nil {
			fatal("backup failed: %w", err)
		}
		reportBackup(res, "Wrote")
		fmt.Printf("   to %s\n", args[0])
	},
}

var sessionRestoreCmd = &cobra.Command{
	Use:   "restore FILE",
	Short: "Create sessions from a JSONL backup",
	Long: `Create sessions from a JSONL backup. Codes that already exist are
skipped, never overwritten.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		gw, closeGateway := openGateway(false)
		defer closeGateway()

		res, err := backup.RestoreFile(cmd.Context(), gw, args[0], backup.Options{DryRun: dryRun})
		if err != nil {
			fatal("restore failed: %w", err)
		}
		verb := "Restored"
		if dryRun {
			verb = "Would restore"
		}
		reportBackup(res, verb)
	},
}

func reportBackup(res *backup.Result, verb string) {
	fmt.Printf("%s %s %d session(s)", RenderPass("✓"), verb, res.Written)
	if res.Skipped > 0 {
		fmt.Printf(", %d skipped (already exist)", res.Skipped)
	}
	fmt.Println()
	for _, e := range res.Errors {
		fmt.Fprintf(os.Stderr, "%s %s\n", RenderWarn("⚠"), e)
	}
}

func init() {
	cf := sessionCreateCmd.Flags()
	cf.String("sitter", "", "Sitter name")
	cf.String("start", "today", "Start date (YYYY-MM-DD or natural language)")
	cf.Int("days", 1, "Number of days")
	cf.StringArray("dog", nil, "Dog as name[:color], repeatable")
	cf.String("owner", "", "Owner contact as name:phone")
	cf.String("secondary", "", "Secondary contact as name:phone")
	cf.String("vet", "", "Vet contact as name:phone")

	sessionListCmd.Flags().Bool("all", false, "Include sittings that have ended")
	sessionDeleteCmd.Flags().BoolP("yes", "y", false, "Skip the confirmation prompt")
	sessionExportCmd.Flags().String("format", "json", "Output format: json or yaml")
	sessionRestoreCmd.Flags().Bool("dry-run", false, "Report what would be restored without writing")

	sessionCmd.AddCommand(sessionCreateCmd, sessionListCmd, sessionShowCmd,
		sessionDeleteCmd, sessionExportCmd, sessionShareCmd,
		sessionBackupCmd, sessionRestoreCmd)
	rootCmd.AddCommand(sessionCmd)
}
