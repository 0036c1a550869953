package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/emersion/go-mbox"
	"github.com/spf13/cobra"

	"github.com/bouncesift/bouncesift/internal/config"
	"github.com/bouncesift/bouncesift/internal/detect"
	"github.com/bouncesift/bouncesift/internal/history"
	"github.com/bouncesift/bouncesift/internal/inbox"
	"github.com/bouncesift/bouncesift/internal/mailmsg"
	"github.com/bouncesift/bouncesift/internal/pipeline"
	"github.com/bouncesift/bouncesift/internal/web"
)

var (
	cfgFile string
	dbFile  string
)

func resolveConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.DefaultConfigPath()
}

// resolveDBPath picks the history database location: the --db flag wins,
// then the storage section of the config, then the default under the home
// dot-dir.
func resolveDBPath(cfg *config.Config) string {
	if dbFile != "" {
		return dbFile
	}
	if cfg != nil && cfg.Storage.Path != "" {
		return cfg.Storage.Path
	}
	return history.DefaultDBPath()
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "bouncesift",
		Short: "Bouncesift - Bounce and auto-reply mail analysis",
		Long: `Bouncesift classifies returned mail: delivery status notifications,
auto-replied vacation messages, and other machine-generated responses.

It can analyze local .eml files and mbox archives, or pull messages
straight from an IMAP mailbox, and keeps a local history of every
classification.`,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.bouncesift/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbFile, "db", "", "history database (default is $HOME/.bouncesift/bouncesift.db)")

	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(analyzeCmd())
	rootCmd.AddCommand(monitorCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(detectorsCmd())
	rootCmd.AddCommand(serveCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func analyzeCmd() *cobra.Command {
	var noStore bool
	var workers int

	cmd := &cobra.Command{
		Use:   "analyze <file>...",
		Short: "Analyze .eml files or mbox archives",
		Long: `Parse one or more message files and run each message through the
detector pipeline. Files ending in .mbox (or starting with a "From "
separator line) are treated as mbox archives; anything else as a single
RFC822 message.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(args, workers, !noStore)
		},
	}

	cmd.Flags().BoolVar(&noStore, "no-store", false, "Do not record results in the history database")
	cmd.Flags().IntVar(&workers, "workers", 0, "Number of analysis workers (default from config)")

	return cmd
}

func monitorCmd() *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Fetch and classify recent messages from the IMAP inbox",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMonitor(days)
		},
	}

	cmd.Flags().IntVar(&days, "days", 0, "How many days back to scan (default from config)")

	return cmd
}

func statusCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show classification history and statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(limit)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Number of recent results to show")

	return cmd
}

func detectorsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "detectors",
		Short: "List the registered detectors",
		Long:  "Show each detector's agent identifier, description, and the headers it keys on, in evaluation order.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDetectors()
		},
	}
}

func serveCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the local dashboard",
		Long: `Start a local web server with a dashboard over the classification
history. The server binds to localhost only.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 8080, "Port to listen on")

	return cmd
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize configuration interactively",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit()
		},
	}
}

// loadConfig loads the config file, falling back to defaults when it does
// not exist yet. Only the monitor command requires a config.
func loadConfig() *config.Config {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return &config.Config{Options: config.Options{Workers: 4, Days: 7}}
	}
	return cfg
}

func runAnalyze(paths []string, workers int, store bool) error {
	cfg := loadConfig()
	if workers == 0 {
		workers = cfg.Options.Workers
	}

	var msgs []*mailmsg.Message
	for _, path := range paths {
		loaded, err := loadMessages(path)
		if err != nil {
			return err
		}
		msgs = append(msgs, loaded...)
	}

	if len(msgs) == 0 {
		fmt.Println("No messages found.")
		return nil
	}

	pipe := pipeline.Default()
	reports := pipe.AnalyzeBatch(msgs, workers)

	var hist *history.Store
	if store {
		var err error
		hist, err = history.NewStore(resolveDBPath(cfg))
		if err != nil {
			return err
		}
		defer hist.Close()
	}

	classified := 0
	for i, report := range reports {
		if report == nil {
			continue
		}
		classified++
		for _, r := range report.Results {
			printResult(msgs[i].Source, r)
			if hist != nil {
				if err := recordResult(hist, msgs[i].Source, r); err != nil {
					fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
				}
			}
		}
	}

	fmt.Printf("\n%d of %d messages classified\n", classified, len(msgs))
	return nil
}

// loadMessages reads a single .eml file or a whole mbox archive.
func loadMessages(path string) ([]*mailmsg.Message, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	isMbox := strings.EqualFold(filepath.Ext(path), ".mbox")
	if !isMbox {
		if peek, err := br.Peek(5); err == nil && string(peek) == "From " {
			isMbox = true
		}
	}

	if !isMbox {
		msg, err := mailmsg.ReadMessage(br)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		msg.Source = path
		return []*mailmsg.Message{msg}, nil
	}

	var msgs []*mailmsg.Message
	mr := mbox.NewReader(br)
	for i := 0; ; i++ {
		r, err := mr.NextMessage()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read mbox %s: %w", path, err)
		}

		msg, err := mailmsg.ReadMessage(r)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: skipping unparsable message %d in %s: %v\n", i+1, path, err)
			continue
		}
		msg.Source = fmt.Sprintf("%s:%d", path, i+1)
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

func printResult(source string, r *detect.Result) {
	soft := ""
	if r.SoftBounce {
		soft = " (soft)"
	}
	status := r.Status
	if status == "" {
		status = "-"
	}
	fmt.Printf("%-28s %-8s %-14s%s %-10s %s\n", source, r.Agent, r.Reason, soft, status, r.Recipient)
	if r.Diagnosis != "" {
		fmt.Printf("  %s\n", truncate(r.Diagnosis, 120))
	}
}

func recordResult(hist *history.Store, source string, r *detect.Result) error {
	return hist.Add(&history.Detection{
		Source:      source,
		Agent:       r.Agent,
		Reason:      r.Reason,
		Recipient:   r.Recipient,
		Diagnosis:   r.Diagnosis,
		Status:      r.Status,
		SoftBounce:  r.SoftBounce,
		MessageDate: r.Date,
	})
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func runMonitor(days int) error {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return err
	}
	if err := cfg.ValidateInbox(); err != nil {
		return err
	}
	if days == 0 {
		days = cfg.Options.Days
	}

	monitor := inbox.NewMonitor(cfg.Inbox)
	ctx := context.Background()
	if err := monitor.Connect(ctx); err != nil {
		return err
	}
	defer monitor.Disconnect()

	msgs, err := monitor.FetchRecent(ctx, days)
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		fmt.Println("No messages found.")
		return nil
	}

	hist, err := history.NewStore(resolveDBPath(cfg))
	if err != nil {
		return err
	}
	defer hist.Close()

	pipe := pipeline.Default()
	reports := pipe.AnalyzeBatch(msgs, cfg.Options.Workers)

	classified := 0
	for i, report := range reports {
		if report == nil {
			continue
		}
		classified++
		for _, r := range report.Results {
			printResult(msgs[i].Source, r)
			if err := recordResult(hist, msgs[i].Source, r); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
			}
		}
	}

	fmt.Printf("\n%d of %d messages classified\n", classified, len(msgs))
	return nil
}

func runStatus(limit int) error {
	hist, err := history.NewStore(resolveDBPath(loadConfig()))
	if err != nil {
		return err
	}
	defer hist.Close()

	total, hard, soft, err := hist.GetStats()
	if err != nil {
		return err
	}

	fmt.Printf("Total detections: %d (%d hard bounces, %d soft bounces)\n\n", total, hard, soft)

	reasons, err := hist.GetReasonStats()
	if err != nil {
		return err
	}
	if len(reasons) > 0 {
		fmt.Println("By reason:")
		for reason, count := range reasons {
			fmt.Printf("  %-16s %d\n", reason, count)
		}
		fmt.Println()
	}

	recent, err := hist.GetRecent(limit)
	if err != nil {
		return err
	}
	if len(recent) == 0 {
		fmt.Println("No detections recorded yet.")
		return nil
	}

	fmt.Println("Recent:")
	for _, d := range recent {
		fmt.Printf("  %s  %-8s %-14s %-28s %s\n",
			d.CreatedAt.Format("2006-01-02 15:04"), d.Agent, d.Reason, d.Recipient, truncate(d.Diagnosis, 60))
	}
	return nil
}

func runDetectors() error {
	for _, d := range pipeline.Default().Detectors() {
		fmt.Printf("%s\n", d.Agent())
		fmt.Printf("  %s\n", d.Description())
		fmt.Printf("  Headers: %s\n", strings.Join(d.InspectedHeaders(), ", "))
	}
	return nil
}

func runServe(port int) error {
	hist, err := history.NewStore(resolveDBPath(loadConfig()))
	if err != nil {
		return err
	}
	defer hist.Close()

	return web.NewServer(hist, port).Start()
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("Bouncesift Configuration Setup")
	fmt.Println("==============================")
	fmt.Println()

	cfg := &config.Config{}

	fmt.Println("IMAP inbox (the mailbox that receives bounce mail)")
	fmt.Println()

	cfg.Inbox.Provider = prompt(reader, "Provider (gmail/outlook/imap): ")
	if cfg.Inbox.Provider == "imap" || cfg.Inbox.Provider == "" {
		cfg.Inbox.Server = prompt(reader, "IMAP server: ")
		if p := prompt(reader, "IMAP port (default 993): "); p != "" {
			if port, err := strconv.Atoi(p); err == nil {
				cfg.Inbox.Port = port
			}
		}
	}
	cfg.Inbox.Email = prompt(reader, "Email address: ")
	cfg.Inbox.Password = prompt(reader, "App password: ")
	cfg.Inbox.Enabled = cfg.Inbox.Email != "" && cfg.Inbox.Password != ""

	path := resolveConfigPath()
	if err := config.Save(path, cfg); err != nil {
		return err
	}

	fmt.Printf("\nConfiguration saved to %s\n", path)
	return nil
}

func prompt(reader *bufio.Reader, label string) string {
	fmt.Print(label)
	line, _ := reader.ReadString('\n')
	return strings.TrimSpace(line)
}
