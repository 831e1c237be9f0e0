package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"
	"time"

	"reviewtrends/internal/categorize"
	"reviewtrends/internal/config"
	"reviewtrends/internal/domain"
	"reviewtrends/internal/httpx"
	"reviewtrends/internal/integrations/llm"
	slackbot "reviewtrends/internal/integrations/slack"
	"reviewtrends/internal/pipeline"
	"reviewtrends/internal/schedule"
	"reviewtrends/internal/storage/files"
	"reviewtrends/internal/storage/sqlite"
	"reviewtrends/internal/trends"
)

const usageText = `usage: reviewtrends <command> [flags]

commands:
  categorize [--product P] [--from YYYY-MM-DD] [--to YYYY-MM-DD] [--resume]
  trends     [--product P]
  run        [--product P] [--all]
  history    [--product P] [--limit N] [--run ID]
  topics     --product P [--date YYYY-MM-DD]
  serve`

func Main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd, rest, err := parseCommand(os.Args[1:])
	if err != nil {
		log.Fatalf("reviewtrends: %v", err)
	}
	if cmd == "" {
		fmt.Println(usageText)
		return
	}
	if err := execute(ctx, config.LoadConfig(), cmd, rest, os.Stdout); err != nil {
		log.Fatalf("reviewtrends: %v", err)
	}
}

// Run executes one command. Configuration comes from config.yaml and the
// environment, as for the binary.
func Run(ctx context.Context, args []string, stdout io.Writer) error {
	cmd, rest, err := parseCommand(args)
	if err != nil {
		return err
	}
	if cmd == "" {
		fmt.Fprintln(stdout, usageText)
		return nil
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return execute(ctx, cfg, cmd, rest, stdout)
}

// parseCommand returns an empty command for help.
func parseCommand(args []string) (string, []string, error) {
	if len(args) == 0 {
		return "", nil, errors.New(usageText)
	}
	switch args[0] {
	case "categorize", "trends", "run", "history", "topics", "serve":
		return args[0], args[1:], nil
	case "help", "-h", "--help":
		return "", nil, nil
	default:
		return "", nil, fmt.Errorf("unknown command %q\n%s", args[0], usageText)
	}
}

func execute(ctx context.Context, cfg config.Config, cmd string, rest []string, stdout io.Writer) error {
	c, err := build(cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	switch cmd {
	case "categorize":
		return c.categorize(ctx, rest, stdout)
	case "trends":
		return c.trends(ctx, rest, stdout)
	case "run":
		return c.run(ctx, rest, stdout)
	case "history":
		return c.history(ctx, rest, stdout)
	case "topics":
		return c.topics(ctx, rest, stdout)
	default:
		return c.serve(ctx)
	}
}

// components holds what every command shares. The provider side (failover,
// validator, canonicalizer, pipeline) is wired by withProviders, so commands
// that only read local state run without API keys.
type components struct {
	cfg        config.Config
	store      *files.Store
	ledger     *sqlite.Ledger
	engine     *categorize.Engine
	runner     *categorize.Runner
	aggregator *trends.Aggregator
	usage      *llm.UsageTotals
	pipeline   *pipeline.Pipeline
}

func build(cfg config.Config) (*components, error) {
	appliedHTTPTimeout := httpx.ConfigureExternalHTTPClient(cfg.ExternalHTTPTimeoutSeconds)
	log.Printf(
		"Config loaded. InputDir=%s OutputDir=%s BatchSize=%d MaxFallbackCalls=%d Primary=%s Fallback=%s Canonicalizer=%s Validator=%s ExternalHTTPTimeout=%s",
		cfg.InputDir,
		cfg.OutputDir,
		cfg.BatchSize,
		cfg.MaxFallbackCalls,
		cfg.PrimaryProvider,
		cfg.FallbackProvider,
		cfg.CanonicalizerProvider,
		cfg.ValidatorProvider,
		appliedHTTPTimeout,
	)

	ledger, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	log.Printf("Ledger initialized at %s", cfg.DBPath)

	store := files.New(cfg.InputDir, cfg.OutputDir)
	engine := &categorize.Engine{
		Store:            store,
		Recorder:         ledger,
		BatchSize:        cfg.BatchSize,
		MaxFallbackCalls: cfg.MaxFallbackCalls,
	}
	return &components{
		cfg:        cfg,
		store:      store,
		ledger:     ledger,
		engine:     engine,
		runner:     &categorize.Runner{Engine: engine, Completions: ledger, DayDelay: cfg.DayDelay()},
		aggregator: &trends.Aggregator{Source: store, Write: files.WriteFileAtomic},
	}, nil
}

// withProviders builds the provider clients and the pipeline once.
func (c *components) withProviders() error {
	if c.pipeline != nil {
		return nil
	}
	cfg := c.cfg
	if err := cfg.ValidateProviders(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	usage := llm.NewUsageTotals()
	recorder := llm.MultiRecorder{usage, c.ledger}
	completer := func(name string) (llm.Completer, error) {
		s, err := cfg.Provider(name)
		if err != nil {
			return nil, err
		}
		if s.Name == config.ProviderAnthropic {
			return llm.NewAnthropicClient(s.APIKey, s.Model, s.BaseURL, httpx.ExternalClient()), nil
		}
		return llm.NewOpenAICompatClient(s.Name, s.APIKey, s.Model, s.BaseURL, httpx.ExternalClient()), nil
	}

	primary, err := completer(cfg.PrimaryProvider)
	if err != nil {
		return err
	}
	validator, err := completer(cfg.ValidatorProvider)
	if err != nil {
		return err
	}
	canonicalizer, err := completer(cfg.CanonicalizerProvider)
	if err != nil {
		return err
	}
	failover := &categorize.Failover{
		Primary:  llm.NewClassifier(primary, cfg.ClassifyTemperature, recorder),
		Cooldown: cfg.FallbackCooldown(),
	}
	if cfg.FallbackEnabled() {
		secondary, err := completer(cfg.FallbackProvider)
		if err != nil {
			return err
		}
		failover.Secondary = llm.NewClassifier(secondary, cfg.ClassifyTemperature, recorder)
	}

	c.engine.Failover = failover
	c.engine.Validator = llm.NewValidator(validator, cfg.ValidateTemperature, recorder)
	c.engine.Canonicalizer = llm.NewCanonicalizer(canonicalizer, cfg.ClassifyTemperature, recorder)
	c.usage = usage

	p := &pipeline.Pipeline{Runner: c.runner, Aggregator: c.aggregator, Usage: usage}
	if n := slackbot.NewNotifierFromToken(cfg.SlackBotToken, cfg.SlackChannelID); n != nil {
		p.Notifier = n
		log.Printf("Slack summaries enabled channel=%s", cfg.SlackChannelID)
	}
	c.pipeline = p
	return nil
}

func (c *components) Close() {
	if err := c.ledger.Close(); err != nil {
		log.Printf("closing ledger: %v", err)
	}
}

func (c *components) categorize(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("categorize", flag.ContinueOnError)
	product := fs.String("product", "", "Only this product")
	from := fs.String("from", "", "First date to process (YYYY-MM-DD)")
	to := fs.String("to", "", "Last date to process (YYYY-MM-DD)")
	resume := fs.Bool("resume", false, "Start after the last successful day in the ledger (requires --product)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	filter := categorize.Filter{Product: *product, From: *from, To: *to}
	if err := validateDates(filter); err != nil {
		return err
	}
	if *resume && *product == "" {
		return errors.New("--resume requires --product")
	}
	if err := c.withProviders(); err != nil {
		return err
	}
	if *resume {
		last, err := c.ledger.LastCompletedDate(ctx, *product)
		if err != nil {
			return fmt.Errorf("reading ledger: %w", err)
		}
		if last != "" {
			next, err := nextDay(last)
			if err != nil {
				return err
			}
			if next > filter.From {
				filter.From = next
			}
			log.Printf("categorize resuming product=%s after=%s", *product, last)
		}
	}

	outcomes, err := c.runner.RunAll(ctx, filter)
	printOutcomes(stdout, outcomes)
	if u := c.usage.String(); u != "" {
		log.Printf("llm usage %s", u)
	}
	return err
}

func (c *components) trends(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("trends", flag.ContinueOnError)
	product := fs.String("product", "", "Only this product (default: every product with review files)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	products := []string{*product}
	if *product == "" {
		var err error
		products, err = c.runner.Products(categorize.Filter{})
		if err != nil {
			return err
		}
	}
	var failed int
	for _, p := range products {
		path, m, err := c.aggregator.Run(ctx, p)
		if err != nil {
			failed++
			fmt.Fprintf(stdout, "%s: %v\n", p, err)
			continue
		}
		fmt.Fprintf(stdout, "%s: %d topics x %d dates -> %s\n", p, len(m.Topics), len(m.Dates), path)
	}
	if failed > 0 && failed == len(products) {
		return fmt.Errorf("no trend table could be built")
	}
	return nil
}

func (c *components) run(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	product := fs.String("product", "", "Only this product")
	all := fs.Bool("all", false, "Also re-categorize days that already completed")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := c.withProviders(); err != nil {
		return err
	}
	res, err := c.pipeline.Run(ctx, categorize.Filter{Product: *product, PendingOnly: !*all})
	fmt.Fprintln(stdout, pipeline.FormatSummary(res))
	return err
}

func (c *components) history(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	product := fs.String("product", "", "Only this product")
	limit := fs.Int("limit", 20, "Maximum runs to list")
	runID := fs.String("run", "", "Show the events and provider calls of one run")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID != "" {
		return c.runDetail(ctx, *runID, stdout)
	}

	runs, err := c.ledger.ListRuns(ctx, *product, *limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(stdout, "No runs recorded.")
		return nil
	}
	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tPRODUCT\tDATE\tSTATUS\tREVIEWS\tASSIGNED\tNEW\tDROPPED\tSKIPPED\tFALLBACK\tSTARTED")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\t%d\t%d\t%s\n",
			r.ID, r.Product, r.Date, r.Status, r.Reviews, r.Assigned, r.NewTopics, r.Dropped, r.SkippedBatches, r.FallbackCalls,
			r.StartedAt.In(c.cfg.Location).Format("2006-01-02 15:04"))
	}
	return tw.Flush()
}

func (c *components) runDetail(ctx context.Context, runID string, stdout io.Writer) error {
	events, err := c.ledger.Events(ctx, runID, "")
	if err != nil {
		return err
	}
	calls, err := c.ledger.ProviderCalls(ctx, runID)
	if err != nil {
		return err
	}
	if len(events) == 0 && len(calls) == 0 {
		fmt.Fprintf(stdout, "Nothing recorded for run %s.\n", runID)
		return nil
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "EVENT\tBATCH\tTOPIC\tREASON\tREVIEW")
	for _, ev := range events {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n", ev.Kind, ev.Batch, ev.Topic, ev.Reason, domain.Truncate(ev.Review, 60))
	}
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "PROVIDER\tMODEL\tROLE\tOK\tTOKENS_IN\tTOKENS_OUT")
	for _, call := range calls {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%d\t%d\n", call.Provider, call.Model, call.Role, call.OK, call.InputTokens, call.OutputTokens)
	}
	return tw.Flush()
}

// topics lists a product's registry with the ledger's assignment totals, or
// one day's assignments when --date is given.
func (c *components) topics(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("topics", flag.ContinueOnError)
	product := fs.String("product", "", "Product to show (required)")
	date := fs.String("date", "", "Show this day's assignments instead (YYYY-MM-DD)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *product == "" {
		return errors.New("topics requires --product")
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	if *date != "" {
		if err := validateDates(categorize.Filter{From: *date}); err != nil {
			return err
		}
		assignments, err := c.store.LoadAssignments(*product, *date)
		if err != nil {
			return err
		}
		fmt.Fprintln(tw, "TOPIC\tREVIEW")
		for _, a := range assignments {
			fmt.Fprintf(tw, "%s\t%s\n", a.Topic, domain.Truncate(a.Review, 80))
		}
		return tw.Flush()
	}

	registry, err := c.store.LoadExistingRegistry(*product)
	if err != nil {
		return err
	}
	history, err := c.ledger.TopicHistory(ctx, *product)
	if err != nil {
		return fmt.Errorf("reading ledger: %w", err)
	}
	fmt.Fprintln(tw, "TOPIC\tASSIGNED\tDESCRIPTION")
	for _, t := range registry.All() {
		fmt.Fprintf(tw, "%s\t%d\t%s\n", t.Label, history[t.Label], t.Description)
	}
	var retired []string
	for label := range history {
		if !registry.Has(label) {
			retired = append(retired, label)
		}
	}
	sort.Strings(retired)
	for _, label := range retired {
		fmt.Fprintf(tw, "%s\t%d\t(not in registry)\n", label, history[label])
	}
	return tw.Flush()
}

func (c *components) serve(ctx context.Context) error {
	if c.cfg.Schedule == "" {
		return errors.New("serve needs a schedule (set schedule in config.yaml or SCHEDULE)")
	}
	if err := c.withProviders(); err != nil {
		return err
	}
	err := schedule.Run(ctx, c.cfg.Schedule, c.cfg.Location, func(ctx context.Context) {
		if _, err := c.pipeline.Run(ctx, categorize.Filter{PendingOnly: true}); err != nil {
			log.Printf("Scheduled run error: %v", err)
		}
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func printOutcomes(w io.Writer, outcomes []categorize.DayOutcome) {
	for _, o := range outcomes {
		r := o.Result
		if o.Err != nil {
			fmt.Fprintf(w, "%s %s: failed: %v\n", r.Product, r.Date, o.Err)
			continue
		}
		fmt.Fprintf(w, "%s %s: %d/%d assigned, %d new topics, %d dropped, %d batches skipped, %d fallback calls\n",
			r.Product, r.Date, r.Assigned, r.Reviews, r.NewTopics, r.Dropped, r.SkippedBatches, r.FallbackCalls)
	}
}

func validateDates(f categorize.Filter) error {
	for _, d := range []string{f.From, f.To} {
		if d == "" {
			continue
		}
		if _, err := time.Parse(time.DateOnly, d); err != nil {
			return fmt.Errorf("invalid date %q: want YYYY-MM-DD", d)
		}
	}
	return nil
}

func nextDay(date string) (string, error) {
	t, err := time.Parse(time.DateOnly, date)
	if err != nil {
		return "", fmt.Errorf("invalid date %q in ledger: %w", date, err)
	}
	return t.AddDate(0, 0, 1).Format(time.DateOnly), nil
}
