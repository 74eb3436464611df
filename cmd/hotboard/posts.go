package main

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/IshaanNene/hotboard/internal/storage"
	"github.com/IshaanNene/hotboard/internal/types"
)

var (
	listSite     string
	listCategory string
	listLimit    int
	exportFormat string
	exportDir    string
)

func queryFromFlags() (storage.Query, error) {
	q := storage.Query{Category: listCategory, Limit: listLimit}
	if listSite != "" {
		site, err := types.ParseSite(listSite)
		if err != nil {
			return q, err
		}
		q.Site = site
	}
	return q, nil
}

// postsCmd prints stored posts, newest first.
func postsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "posts",
		Short: "Show stored posts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			q, err := queryFromFlags()
			if err != nil {
				return err
			}

			ctx := context.Background()
			store, err := openStore(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			posts, err := store.ListPosts(ctx, q)
			if err != nil {
				return err
			}

			cyan := color.New(color.FgCyan).SprintFunc()
			yellow := color.New(color.FgYellow).SprintFunc()
			faint := color.New(color.Faint).SprintFunc()
			for _, p := range posts {
				fmt.Printf("%-9s %s %s\n", cyan(p.Site), p.Title,
					yellow(fmt.Sprintf("👁 %d 👍 %d 💬 %d", p.Views, p.Likes, p.Comments)))
				fmt.Printf("          %s %s\n", faint(p.URL), faint(p.CrawledAt.Local().Format(time.DateTime)))
			}
			fmt.Printf("\n%d posts\n", len(posts))
			return nil
		},
	}

	cmd.Flags().StringVar(&listSite, "site", "", "only posts from this site")
	cmd.Flags().StringVar(&listCategory, "category", "", "only posts in this category")
	cmd.Flags().IntVarP(&listLimit, "limit", "n", 20, "maximum number of posts")
	return cmd
}

// exportCmd writes stored posts to a file.
func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export stored posts to json, jsonl, csv or xlsx",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			format, err := storage.ParseFormat(exportFormat)
			if err != nil {
				return err
			}
			q, err := queryFromFlags()
			if err != nil {
				return err
			}
			dir := exportDir
			if dir == "" {
				dir = cfg.Storage.ExportDir
			}

			ctx := context.Background()
			store, err := openStore(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			posts, err := store.ListPosts(ctx, q)
			if err != nil {
				return err
			}
			path, err := storage.ExportFile(dir, format, posts, time.Now(), logger)
			if err != nil {
				return err
			}
			fmt.Printf("%s %d posts to %s\n", color.GreenString("exported"), len(posts), path)
			return nil
		},
	}

	cmd.Flags().StringVarP(&exportFormat, "format", "f", "json", "output format: json, jsonl, csv, xlsx")
	cmd.Flags().StringVarP(&exportDir, "output", "o", "", "output directory (defaults to storage.export_dir)")
	cmd.Flags().StringVar(&listSite, "site", "", "only posts from this site")
	cmd.Flags().StringVar(&listCategory, "category", "", "only posts in this category")
	cmd.Flags().IntVarP(&listLimit, "limit", "n", 1000, "maximum number of posts")
	return cmd
}
