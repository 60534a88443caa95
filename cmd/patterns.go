package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"CatalogSync/internal/identity"

	"github.com/spf13/cobra"
)

func newPatternsCommand(ctx *cliContext) *cobra.Command {
	var sample string
	cmd := &cobra.Command{
		Use:   "patterns",
		Short: "打印身份抽取规则表，或用 --sample 试抽一个标题",
		RunE: func(cmd *cobra.Command, _ []string) error {
			table, err := identity.LoadTable(ctx.cfg.Matching.PatternsFile)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if sample != "" {
				extractor, err := identity.NewExtractor(table)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, renderSample(extractor.ExtractDetail(sample)))
				return nil
			}
			fmt.Fprintln(out, renderPatterns(table))
			return nil
		},
	}
	cmd.Flags().StringVar(&sample, "sample", "", "试抽取的标题或文件名")
	return cmd
}

// renderSample 抽取结果与命中的规则
func renderSample(d identity.Detail) string {
	id := d.Identity
	fields := renderTable("Identity", []string{"Field", "Value"}, [][]string{
		{"brand", string(id.Brand)},
		{"year", strconv.Itoa(id.Year)},
		{"region", string(id.Region)},
		{"event_type", string(id.EventType)},
		{"episode", strconv.Itoa(id.Episode)},
		{"day", id.Day},
		{"part", strconv.Itoa(id.Part)},
		{"show_number", strconv.Itoa(id.ShowNumber)},
	}, nil)
	if !d.Matched() {
		return fields + "\nno rule matched: " + d.Normalized
	}
	rows := make([][]string, 0, len(d.Hits))
	for _, h := range d.Hits {
		keys := make([]string, 0, len(h.Fields))
		for k, v := range h.Fields {
			keys = append(keys, k+"="+v)
		}
		sort.Strings(keys)
		rows = append(rows, []string{h.Layer, h.RuleID, fmt.Sprintf("%d-%d", h.Start, h.End), h.Text, strings.Join(keys, ",")})
	}
	hits := renderTable("Rules: "+d.Normalized, []string{"Layer", "Rule", "Span", "Text", "Fields"}, rows, nil)
	return fields + "\n" + hits
}

func renderPatterns(t *identity.PatternTable) string {
	var rows [][]string
	for _, l := range t.Layers {
		for _, r := range l.Rules {
			target := r.Field
			if len(r.Set) > 0 {
				keys := make([]string, 0, len(r.Set))
				for k := range r.Set {
					keys = append(keys, k+"="+r.Set[k])
				}
				sort.Strings(keys)
				if target != "" {
					target += " "
				}
				target += strings.Join(keys, ",")
			}
			layer := l.Name
			if l.Exclusive {
				layer += " (exclusive)"
			}
			rows = append(rows, []string{layer, r.ID, strconv.Itoa(r.Priority), target, r.Pattern})
		}
	}
	return renderTable("", []string{"Layer", "Rule", "Priority", "Sets", "Pattern"}, rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft})
}
