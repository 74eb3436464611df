package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/IshaanNene/hotboard/internal/crawler"
	"github.com/IshaanNene/hotboard/internal/observability"
)

var (
	crawlDelay    time.Duration
	crawlTopN     int
	crawlFallback bool
)

// crawlCmd creates the "crawl" subcommand.
func crawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl [site]",
		Short: "Crawl every enabled site, or just one",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runCrawl,
	}

	cmd.Flags().DurationVar(&crawlDelay, "delay", 0, "minimum delay between fetches (overrides crawl.politeness_delay)")
	cmd.Flags().IntVar(&crawlTopN, "top", 0, "posts kept per site (overrides crawl.top_n)")
	cmd.Flags().BoolVar(&crawlFallback, "browser-fallback", false, "retry failed sites with the headless browser")
	return cmd
}

func runCrawl(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if crawlDelay > 0 {
		cfg.Crawl.PolitenessDelay = crawlDelay
	}
	if crawlTopN > 0 {
		cfg.Crawl.TopN = crawlTopN
	}
	if crawlFallback {
		cfg.Crawl.BrowserFallback = true
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	coord, err := crawler.FromConfig(cfg, store, observability.NewMetrics(logger), logger)
	if err != nil {
		return fmt.Errorf("build crawler: %w", err)
	}
	defer coord.Close()

	if len(args) == 1 {
		n, err := coord.CrawlOne(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("%s: %s new posts\n", color.CyanString(strings.ToLower(args[0])), color.GreenString("%d", n))
		return nil
	}

	printSummary(coord.CrawlAll(ctx))
	return nil
}

// printSummary renders one line per site.
func printSummary(sum *crawler.Summary) {
	cyan := color.New(color.FgCyan).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	for _, r := range sum.Sites {
		status := green("ok")
		detail := fmt.Sprintf("%d new, %d updated from %s", r.New, r.Updated, r.ListingURL)
		if r.Err != nil {
			status = red("failed")
			detail = r.Error
		}
		fmt.Printf("  %-10s %-8s %s %s\n", cyan(r.Site), status, detail, yellow(r.Duration.Round(time.Millisecond)))
	}
	fmt.Printf("\n%s new posts in %s\n", green(sum.TotalNew), sum.Duration.Round(time.Millisecond))
	if failed := sum.Failed(); len(failed) > 0 {
		fmt.Fprintf(os.Stderr, "%s %d of %d sites failed\n", red("!"), len(failed), len(sum.Sites))
	}
}

// sitesCmd lists the registered sites.
func sitesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sites",
		Short: "List configured sites and their listing URLs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			cyan := color.New(color.FgCyan).SprintFunc()
			faint := color.New(color.Faint).SprintFunc()

			for _, name := range cfg.Crawl.Sites {
				site := cfg.Sites[name]
				state := color.GreenString("enabled")
				if !site.Enabled {
					state = color.RedString("disabled")
				}
				fetcher := site.Fetcher
				if fetcher == "" {
					fetcher = "http"
				}
				fmt.Printf("%s  %s  %s\n", cyan(name), state, faint(fetcher))
				for _, u := range site.ListingURLs {
					fmt.Printf("    %s\n", u)
				}
			}
			return nil
		},
	}
}
