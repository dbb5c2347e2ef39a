package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/LJTian/Topline/internal/aggregator"
	"github.com/LJTian/Topline/internal/app"
	"github.com/LJTian/Topline/internal/classify"
	"github.com/LJTian/Topline/internal/collector"
	"github.com/LJTian/Topline/internal/config"
	"github.com/LJTian/Topline/internal/registry"
)

func parseViews(v string) ([]aggregator.View, error) {
	switch v {
	case "", "all":
		return []aggregator.View{aggregator.ViewNews, aggregator.ViewTrending}, nil
	case string(aggregator.ViewNews):
		return []aggregator.View{aggregator.ViewNews}, nil
	case string(aggregator.ViewTrending):
		return []aggregator.View{aggregator.ViewTrending}, nil
	}
	return nil, fmt.Errorf("unknown view %q (want news, trending or all)", v)
}

func runCollect(cmd *cobra.Command, _ []string) error {
	views, err := parseViews(flagView)
	if err != nil {
		return err
	}
	var category classify.Category
	if flagCategory != "" {
		c, ok := classify.Parse(flagCategory)
		if !ok {
			return fmt.Errorf("unknown category %q", flagCategory)
		}
		category = c
	}

	cfg := config.Load()
	a, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	for _, v := range views {
		ctx, cancel := context.WithTimeout(cmd.Context(), cfg.RefreshDeadline)
		e, err := a.Aggregator.Refresh(ctx, v)
		cancel()
		if err != nil {
			a.Log.WithField("view", v).WithError(err).Error("refresh failed")
			continue
		}

		items := filterItems(e.Items, category, flagLimit)
		if flagJSON {
			if err := printJSON(out, v, e.LastUpdate, items); err != nil {
				return err
			}
			continue
		}
		fmt.Fprintf(out, "== %s (%d items, updated %s)\n", v, len(e.Items), e.LastUpdate.Format(time.RFC3339))
		if err := printTable(out, items); err != nil {
			return err
		}
	}
	return nil
}

func runSources(cmd *cobra.Command, _ []string) error {
	cfg := config.Load()
	reg, err := registry.Load(cfg.SourcesFile)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tNAME\tTOPIC\tTRENDING\tFEED")
	for _, s := range reg.Sources() {
		trending := "-"
		if s.TrendingURL != "" {
			trending = "yes"
		}
		topic := s.TopicHint
		if topic == "" {
			topic = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", s.Key, s.Name(), topic, trending, s.FeedURL)
	}
	return w.Flush()
}

func filterItems(items []collector.NewsItem, category classify.Category, limit int) []collector.NewsItem {
	out := make([]collector.NewsItem, 0, len(items))
	for _, it := range items {
		if category != "" && it.Category != category {
			continue
		}
		out = append(out, it)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

func printJSON(out io.Writer, v aggregator.View, at time.Time, items []collector.NewsItem) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{
		"view":       v,
		"lastUpdate": at,
		"items":      items,
	})
}

func printTable(out io.Writer, items []collector.NewsItem) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PUBLISHED\tCATEGORY\tSOURCE\tTITLE")
	for _, it := range items {
		published := "-"
		if it.PublishedAt != nil {
			published = it.PublishedAt.Local().Format("01-02 15:04")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", published, it.Category, it.Source, truncate(it.Title, 80))
	}
	return w.Flush()
}

func truncate(s string, n int) string {
	rs := []rune(s)
	if len(rs) <= n {
		return s
	}
	return string(rs[:n]) + "…"
}
