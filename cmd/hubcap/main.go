package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kokistudios/hubcap/internal/adapters"
	"github.com/kokistudios/hubcap/internal/capture"
	"github.com/kokistudios/hubcap/internal/checker"
	"github.com/kokistudios/hubcap/internal/config"
	"github.com/kokistudios/hubcap/internal/hub"
	hubmcp "github.com/kokistudios/hubcap/internal/mcp"
	"github.com/kokistudios/hubcap/internal/ui"
)

// Set via ldflags at build time
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func buildVersion() string {
	if commit == "none" {
		return version
	}
	return fmt.Sprintf("%s (%s, %s)", version, commit, date)
}

func main() {
	var noColor bool

	rootCmd := &cobra.Command{
		Use:   "hubcap",
		Short: "hubcap: capture anything into your knowledge hub",
		Long:  "A local CLI that classifies short free-text messages and files them into a markdown knowledge hub with dedup, reminders, and watch tracking.",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			ui.Init(noColor)
		},
	}

	rootCmd.Version = buildVersion()
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	rootCmd.AddGroup(
		&cobra.Group{ID: "capture", Title: "Capture Commands:"},
		&cobra.Group{ID: "hub", Title: "Hub Commands:"},
		&cobra.Group{ID: "config", Title: "Configuration:"},
	)

	initC := initCmd()
	initC.GroupID = "config"
	captureC := captureCmd()
	captureC.GroupID = "capture"
	watchC := watchCmd()
	watchC.GroupID = "capture"
	queueC := queueCmd()
	queueC.GroupID = "hub"
	showC := showCmd()
	showC.GroupID = "hub"
	inboxC := inboxCmd()
	inboxC.GroupID = "hub"
	configC := configCmd()
	configC.GroupID = "config"
	doctorC := doctorCmd()
	doctorC.GroupID = "config"

	rootCmd.AddCommand(initC)
	rootCmd.AddCommand(captureC)
	rootCmd.AddCommand(watchC)
	rootCmd.AddCommand(queueC)
	rootCmd.AddCommand(showC)
	rootCmd.AddCommand(inboxC)
	rootCmd.AddCommand(configC)
	rootCmd.AddCommand(doctorC)
	rootCmd.AddCommand(mcpServeCmd())
	rootCmd.AddCommand(completionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadStore() (*config.Store, error) {
	return config.Load(config.Home())
}

// resolvePaths loads config and returns the resolved hub layout.
func resolvePaths() (*config.Store, hub.Paths, error) {
	s, err := loadStore()
	if err != nil {
		return nil, hub.Paths{}, err
	}
	root := hub.ResolveRoot(s.Config.Hub.Root)
	return s, hub.Resolve(root), nil
}

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:     "init",
		Short:   "Initialize HUBCAP_HOME and the hub scaffold",
		Long:    "Create the HUBCAP_HOME directory (~/.hubcap by default) with config.yaml, then scaffold the knowledge hub directory tree with its index files. Existing hub files are never overwritten.",
		Example: "  hubcap init\n  hubcap init --force",
		RunE: func(cmd *cobra.Command, args []string) error {
			home := config.Home()
			if force {
				if _, err := os.Stat(filepath.Join(home, "config.yaml")); err == nil {
					proceed, err := ui.Confirm(fmt.Sprintf("Reset config at %s?", home))
					if err != nil {
						return err
					}
					if !proceed {
						ui.Info("Cancelled.")
						return nil
					}
				}
			}
			if err := config.Init(home, force); err != nil {
				return err
			}

			_, paths, err := resolvePaths()
			if err != nil {
				return err
			}
			if err := paths.EnsureDirs(); err != nil {
				return err
			}
			if err := paths.EnsureScaffold(); err != nil {
				return err
			}

			ui.LogoWithTagline("capture everything")
			ui.Success("hubcap initialized")
			ui.Detail("Home:", home)
			ui.Detail("Hub: ", paths.Root)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Rewrite config.yaml even if HUBCAP_HOME already exists")
	return cmd
}

func captureCmd() *cobra.Command {
	var platform string
	var messageID string
	var replyTo string
	var groupID string
	var senderID string
	var timestamp string
	var outputMode string
	var dryRun bool
	var fromStdin bool

	cmd := &cobra.Command{
		Use:   "capture [message]",
		Short: "Classify a message and file it into the hub",
		Long: `Classify a short free-text message (task, idea, question, reference, ...)
and file it into the knowledge hub. Prints a structured JSON result by default;
use --output agent to get the filed cards plus a chat-ready reply instead.

Replaying the same --message-id is a no-op, so webhooks can retry safely.`,
		Example: `  hubcap capture "明天 14:00 提醒我交季度報告"
  hubcap capture "https://example.com/post 好文，收藏" --platform telegram
  echo "跟進 Alex 的合約" | hubcap capture --stdin --message-id tg-10021
  hubcap capture "盯一下 PR #442" --dry-run --output agent`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content := ""
			if len(args) > 0 {
				content = args[0]
			}
			if fromStdin {
				data, err := io.ReadAll(os.Stdin)
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
				content = string(data)
			}
			if strings.TrimSpace(content) == "" {
				return fmt.Errorf("nothing to capture (pass a message or --stdin)")
			}

			s, paths, err := resolvePaths()
			if err != nil {
				return err
			}

			mode := outputMode
			if mode == "" {
				mode = s.OutputMode()
			}

			input := adapters.Normalize(adapters.RawMessage{
				Platform:  platform,
				MessageID: messageID,
				GroupID:   groupID,
				ReplyTo:   replyTo,
				SenderID:  senderID,
				Timestamp: timestamp,
				Content:   content,
			})

			out, err := capture.Run(capture.RunParams{
				Input:       input,
				Paths:       paths,
				OutputMode:  mode,
				ApplyWrites: !dryRun,
				Now:         capture.ParseTimestamp(timestamp, time.Now()),
			})
			if err != nil {
				return err
			}

			if dryRun {
				ui.Warning("Dry run: nothing written to the hub.")
			}

			if mode == "agent" && out.Agent != nil {
				fmt.Println(out.Agent.Text)
				return nil
			}

			data, err := json.MarshalIndent(out, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		},
	}

	cmd.Flags().StringVar(&platform, "platform", "", "Source platform: telegram, whatsapp, wechat, feishu, email, generic")
	cmd.Flags().StringVar(&messageID, "message-id", "", "Stable upstream message id (replays are no-ops)")
	cmd.Flags().StringVar(&replyTo, "reply-to", "", "Message id of a prior capture this one replies to")
	cmd.Flags().StringVar(&groupID, "group-id", "", "Chat or group identifier from the source platform")
	cmd.Flags().StringVar(&senderID, "sender-id", "", "Sender identifier from the source platform")
	cmd.Flags().StringVar(&timestamp, "timestamp", "", "Message timestamp (RFC3339 or 'YYYY-MM-DD HH:MM', default now)")
	cmd.Flags().StringVarP(&outputMode, "output", "o", "", "Output mode: json or agent (default from config)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Classify and plan file operations without writing")
	cmd.Flags().BoolVar(&fromStdin, "stdin", false, "Read the message from stdin")
	return cmd
}

func watchCmd() *cobra.Command {
	var today string
	var push bool
	var pushDryRun bool
	var channel string
	var target string
	var notify bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run the daily watch sweep",
		Long: `Sweep watch items: expire entries past their archive date, archive their
cards, prune the waiting list, and collect today's checkpoint reminders into
watch_reminders.md. With --push, a push payload file is also written for an
external sender to deliver.`,
		Example: `  hubcap watch
  hubcap watch --today 2026-03-01
  hubcap watch --push --channel telegram --target @me
  hubcap watch --push --dry-run --target @me`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, paths, err := resolvePaths()
			if err != nil {
				return err
			}

			if target == "" {
				target = s.Config.Push.Dir
			}
			defaultPush, defaultChannel := s.PushDefaults()
			if !cmd.Flags().Changed("push") {
				push = defaultPush
			}
			if channel == "" {
				channel = defaultChannel
			}

			ui.CommandBanner("WATCH", "daily sweep")
			spinner := ui.NewSpinner("sweeping watch items")
			res, err := checker.Run(checker.Options{
				Paths: paths,
				Today: today,
				Push: checker.PushOptions{
					Enabled: push,
					DryRun:  pushDryRun,
					Channel: channel,
					Target:  target,
				},
			})
			spinner.Stop()
			if err != nil {
				return err
			}

			ui.KeyValue("Date:     ", res.Today)
			ui.KeyValue("Due today:", fmt.Sprintf("%d (%d new)", res.Due, res.NewDue))
			ui.KeyValue("Expired:  ", fmt.Sprintf("%d", res.Expired))
			if res.ArchivedCards > 0 {
				ui.Detail("archived cards:", fmt.Sprintf("%d", res.ArchivedCards))
			}
			if res.WaitingRemoved > 0 {
				ui.Detail("waiting pruned:", fmt.Sprintf("%d", res.WaitingRemoved))
			}
			if res.SignalsAdded > 0 {
				ui.Detail("signals added:", fmt.Sprintf("%d", res.SignalsAdded))
			}
			ui.Detail("report:", paths.DisplayPath(res.ReportPath))

			if push {
				switch res.PushMode {
				case "payload":
					ui.Success(fmt.Sprintf("Push payload written (%d reminders)", res.Pushed))
					ui.Detail("payload:", paths.DisplayPath(res.PayloadPath))
				case "simulated_dry_run":
					ui.Info("Push simulated (dry run), payload written for inspection")
				default:
					if res.PushError != "" {
						ui.Warning("Push skipped: " + res.PushError)
					} else {
						ui.Info("Nothing new to push")
					}
				}
			}

			if res.Due == 0 && res.Expired == 0 {
				ui.EmptyState("Nothing expired and no checkpoints due today.")
			} else if notify && res.Due > 0 {
				ui.Notify("hubcap watch", fmt.Sprintf("%d watch reminder(s) due today", res.Due))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&today, "today", "", "Override the sweep date as YYYY-MM-DD")
	cmd.Flags().BoolVar(&push, "push", false, "Write a push payload for new reminders")
	cmd.Flags().BoolVar(&pushDryRun, "dry-run", false, "Simulate the push, still writing the payload")
	cmd.Flags().StringVar(&channel, "channel", "", "Push channel label (default telegram)")
	cmd.Flags().StringVar(&target, "target", "", "Push target (default from push.dir config)")
	cmd.Flags().BoolVar(&notify, "notify", false, "Send a desktop notification when reminders are due")
	return cmd
}

func queueCmd() *cobra.Command {
	var all bool
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "queue",
		Short: "List reasoning queue entries",
		Long:  "List entries from the reasoning queue: low-confidence captures and watch items awaiting a human pass. Consumed entries are hidden unless --all is given.",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, paths, err := resolvePaths()
			if err != nil {
				return err
			}

			queuePath := filepath.Join(paths.Meta, "reasoning_queue.jsonl")
			rows := hub.ReadJSONLRaw(queuePath)

			var entries []capture.QueueEntry
			for _, row := range rows {
				var entry capture.QueueEntry
				if err := json.Unmarshal(row, &entry); err != nil {
					continue
				}
				if !all && entry.ConsumedAt != "" {
					continue
				}
				entries = append(entries, entry)
			}

			if asJSON {
				data, err := json.MarshalIndent(entries, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(data))
				return nil
			}

			if len(entries) == 0 {
				ui.EmptyState("Reasoning queue is empty.")
				return nil
			}

			var tableRows [][]string
			for _, e := range entries {
				due := "-"
				if e.Due != nil && *e.Due != "" {
					due = *e.Due
				}
				status := "pending"
				if e.ConsumedAt != "" {
					status = e.ConsumedReason
					if status == "" {
						status = "consumed"
					}
				}
				conf := fmt.Sprintf("%.2f", e.Confidence)
				tags := strings.Join(e.Tags, ",")
				if len([]rune(tags)) > 24 {
					tags = string([]rune(tags)[:24]) + ".."
				}
				tableRows = append(tableRows, []string{e.ID, e.Type, conf, due, tags, status})
			}
			ui.Table([]string{"ID", "TYPE", "CONF", "DUE", "TAGS", "STATUS"}, tableRows)
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Include consumed entries")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print raw JSON instead of a table")
	return cmd
}

func showCmd() *cobra.Command {
	var raw bool

	cmd := &cobra.Command{
		Use:     "show <card-id>",
		Short:   "Render a filed card",
		Long:    "Look up a card by id (e.g. 2026-02-20-001) and render its markdown in the terminal.",
		Example: "  hubcap show 2026-02-20-001\n  hubcap show 2026-02-20-001 --raw",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, paths, err := resolvePaths()
			if err != nil {
				return err
			}

			index := hub.BuildCardIndex(paths.Root)
			ref, ok := index[args[0]]
			if !ok {
				return fmt.Errorf("no card with id %s", args[0])
			}

			content, ok := hub.ReadText(ref.Path)
			if !ok {
				return fmt.Errorf("card file missing: %s", ref.Path)
			}

			ui.KeyValue("Card:", fmt.Sprintf("%s %s", hub.TypeEmoji(ref.Type), ui.Bold(ref.Title)))
			ui.KeyValue("Path:", ui.Dim(paths.DisplayPath(ref.Path)))
			if raw {
				fmt.Println(content)
				return nil
			}
			ui.RenderMarkdown(content)
			return nil
		},
	}

	cmd.Flags().BoolVar(&raw, "raw", false, "Print the card source instead of rendering it")
	return cmd
}

func inboxCmd() *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:     "inbox",
		Short:   "Render a day's inbox",
		Long:    "Render the inbox entries captured on a given day (default today).",
		Example: "  hubcap inbox\n  hubcap inbox --date 2026-02-20",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, paths, err := resolvePaths()
			if err != nil {
				return err
			}

			ymd := date
			if ymd == "" {
				ymd = capture.NowParts(time.Now()).YMD
			}

			files := paths.ListInboxFilesForDay(ymd)
			if len(files) == 0 {
				ui.EmptyState(fmt.Sprintf("No inbox entries for %s.", ymd))
				return nil
			}

			for _, file := range files {
				content, ok := hub.ReadText(file)
				if !ok {
					continue
				}
				ui.SectionHeader(paths.DisplayPath(file))
				ui.RenderMarkdown(content)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "Day to show as YYYY-MM-DD (default today)")
	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and edit hubcap configuration",
	}
	cmd.AddCommand(configShowCmd())
	cmd.AddCommand(configSetCmd())
	return cmd
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display current effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadStore()
			if err != nil {
				return err
			}
			data, err := yaml.Marshal(s.Config)
			if err != nil {
				return fmt.Errorf("failed to marshal config: %w", err)
			}
			fmt.Print(string(data))
			return nil
		},
	}
}

func configSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Long:  "Set a hubcap configuration value. Valid keys: hub.root, hub.output_mode, push.telegram, push.email, push.dir.",
		Example: `  hubcap config set hub.root ~/notes/assistant_hub
  hubcap config set hub.output_mode agent
  hubcap config set push.telegram true`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadStore()
			if err != nil {
				return err
			}
			if err := s.SetConfigValue(args[0], args[1]); err != nil {
				return err
			}
			ui.Success(fmt.Sprintf("Set %s = %s", args[0], args[1]))
			return nil
		},
	}
}

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check health of HUBCAP_HOME and the hub layout",
		RunE: func(cmd *cobra.Command, args []string) error {
			home := config.Home()
			s, err := config.Load(home)
			if err != nil {
				return err
			}
			root := hub.ResolveRoot(s.Config.Hub.Root)

			ui.CommandBanner("DOCTOR", "health check")

			issues := config.CheckHealth(home, root)
			issues = append(issues, queueIssues(hub.Resolve(root))...)
			if len(issues) == 0 {
				ui.Success("Everything looks good")
				return nil
			}

			hasError := false
			for _, issue := range issues {
				if issue.Severity == "error" {
					ui.Error(fmt.Sprintf("[ERR]  %s", issue.Message))
					hasError = true
				} else {
					ui.Warning(fmt.Sprintf("[WARN] %s", issue.Message))
				}
			}

			if hasError {
				os.Exit(2)
			}
			os.Exit(1)
			return nil
		},
	}
}

// queueIssues flags reasoning-queue rows whose type is outside the capture
// type set; the checker tolerates them but they usually mean a hand edit
// went wrong.
func queueIssues(paths hub.Paths) []config.Issue {
	var issues []config.Issue
	queuePath := filepath.Join(paths.Meta, "reasoning_queue.jsonl")
	for i, row := range hub.ReadJSONLRaw(queuePath) {
		var entry capture.QueueEntry
		if err := json.Unmarshal(row, &entry); err != nil {
			issues = append(issues, config.Issue{Severity: "warning", Message: fmt.Sprintf("reasoning_queue.jsonl row %d does not decode as a queue entry", i+1)})
			continue
		}
		if entry.Type != "" && !capture.KnownType(entry.Type) {
			issues = append(issues, config.Issue{Severity: "warning", Message: fmt.Sprintf("reasoning_queue.jsonl row %d has unknown type %q", i+1, entry.Type)})
		}
	}
	return issues
}

func mcpServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:    "mcp-serve",
		Short:  "Run hubcap as an MCP server",
		Long:   "Start hubcap as a Model Context Protocol (MCP) server over stdio, exposing capture, queue, and watch tools to MCP-compatible agents.",
		Hidden: true, // Not typically called directly by users
		RunE: func(cmd *cobra.Command, args []string) error {
			s, paths, err := resolvePaths()
			if err != nil {
				return err
			}
			server := hubmcp.NewServer(paths, s.OutputMode(), version)
			return server.Run(context.Background())
		},
	}
}

func completionCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "completion [bash|zsh|fish]",
		Short:     "Generate shell completion scripts",
		Long:      "Generate shell completion scripts for bash, zsh, or fish. Output the script to stdout for sourcing in your shell profile.",
		Example:   "  hubcap completion bash > ~/.bashrc.d/hubcap\n  hubcap completion zsh > ~/.zfunc/_hubcap\n  hubcap completion fish > ~/.config/fish/completions/hubcap.fish",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"bash", "zsh", "fish"},
		RunE: func(cmd *cobra.Command, args []string) error {
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(os.Stdout)
			case "zsh":
				return cmd.Root().GenZshCompletion(os.Stdout)
			case "fish":
				return cmd.Root().GenFishCompletion(os.Stdout, true)
			default:
				return fmt.Errorf("unsupported shell: %s (use bash, zsh, or fish)", args[0])
			}
		},
	}
}
