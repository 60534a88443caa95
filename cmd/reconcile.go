package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"CatalogSync/internal/model"
	"CatalogSync/internal/service"
	"CatalogSync/internal/store"

	"github.com/spf13/cobra"
)

func newReconcileCommand(ctx *cliContext) *cobra.Command {
	var (
		jsonOut bool
		status  string
		search  string
	)
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "执行一次对账并打印统计（可选打印匹配矩阵）",
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter, err := service.ParseMatrixFilter(status, search, "")
			if err != nil {
				return err
			}
			a, err := buildApp(ctx.cfg, ctx.logger)
			if err != nil {
				return err
			}
			defer a.close()

			res, err := a.reconcile.Run(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if jsonOut {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			fmt.Fprintf(out, "run %s: %d entries, %d verdicts\n", res.RunID, res.Entries, res.Verdicts)
			fmt.Fprintln(out, renderStats(res.Stats))
			if status != "" || search != "" {
				fmt.Fprintln(out, renderMatrix(a.matrix.ListMatrix(filter).Items))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "以 JSON 输出对账结果")
	cmd.Flags().StringVar(&status, "status", "", "打印指定状态的矩阵行：complete/partial/left_only/right_only")
	cmd.Flags().StringVar(&search, "search", "", "打印名称包含该子串的矩阵行")
	return cmd
}

func renderStats(st store.Stats) string {
	provs := []model.Provenance{model.ProvenanceStreaming, model.ProvenanceFilesystem, model.ProvenanceExternal}
	rows := make([][]string, 0, len(provs)+8)
	for _, p := range provs {
		s := st.Sources[p]
		rows = append(rows, []string{
			string(p),
			strconv.Itoa(s.TotalRecords),
			strconv.Itoa(s.TotalEntries),
			strconv.Itoa(s.TotalMatched),
			strconv.Itoa(s.TotalUnmatched),
		})
	}
	sources := renderTable("Sources", []string{"Source", "Records", "Entries", "Matched", "Unmatched"}, rows,
		[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight})

	f := st.Matching.Files
	summary := [][]string{
		{"complete", strconv.Itoa(f.Complete)},
		{"partial", strconv.Itoa(f.Partial)},
		{"left_only", strconv.Itoa(f.LeftOnly)},
		{"right_only", strconv.Itoa(f.RightOnly)},
	}
	rules := make([]string, 0, len(st.Matching.ByRule))
	for r := range st.Matching.ByRule {
		rules = append(rules, r)
	}
	sort.Strings(rules)
	for _, r := range rules {
		summary = append(summary, []string{"rule " + r, strconv.Itoa(st.Matching.ByRule[r])})
	}
	summary = append(summary,
		[]string{"segments", strconv.Itoa(st.Coverage.TotalSegments)},
		[]string{"conversion rate", fmt.Sprintf("%.1f%%", st.Coverage.SegmentConversionRate*100)},
		[]string{"orphan segments", strconv.Itoa(st.Errors.OrphanSegments)},
		[]string{"malformed records", strconv.Itoa(st.Errors.MalformedRecords)},
		[]string{"unresolved identity", strconv.Itoa(st.Errors.IdentityUnresolved)},
	)
	matching := renderTable("Matching", []string{"Metric", "Value"}, summary, []columnAlignment{alignLeft, alignRight})
	return sources + "\n" + matching
}

func renderMatrix(items []store.MatrixRow) string {
	rows := make([][]string, 0, len(items))
	for _, it := range items {
		rows = append(rows, []string{
			string(it.Provenance),
			it.DisplayName,
			string(it.Status),
			it.RuleID,
			it.CounterpartName,
		})
	}
	return renderTable("Matrix", []string{"Source", "Name", "Status", "Rule", "Counterpart"}, rows, nil)
}
