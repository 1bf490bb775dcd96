package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dagoof/sc-buildorders/internal/application"
	"github.com/dagoof/sc-buildorders/internal/buildorder"
	"github.com/dagoof/sc-buildorders/internal/catalog"
)

func jsonMarshal(v any) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}

func printJSON(v any) error {
	b, err := jsonMarshal(v)
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}

func printKV(rows [][2]string) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for _, row := range rows {
		_, _ = fmt.Fprintf(w, "%s\t%s\n", row[0], row[1])
	}
	_ = w.Flush()
}

func printTable(headers []string, rows [][]string) {
	if len(rows) == 0 {
		fmt.Println("no results")
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, strings.Join(headers, "\t"))
	for _, row := range rows {
		_, _ = fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	_ = w.Flush()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02 15:04:05")
}

func formatList(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}

// formatCosts renders costs in a stable resource order.
func formatCosts(costs map[string]int) string {
	if len(costs) == 0 {
		return "-"
	}
	kinds := make([]string, 0, len(costs))
	for k := range costs {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	parts := make([]string, 0, len(kinds))
	for _, k := range kinds {
		parts = append(parts, k+"="+strconv.Itoa(costs[k]))
	}
	return strings.Join(parts, " ")
}

func printEntities(items []catalog.EntityView) {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, []string{item.Name, formatList(item.FullRequirements), strconv.Itoa(len(item.Allows))})
	}
	printTable([]string{"NAME", "REQUIRES", "ALLOWS"}, rows)
}

func printEntity(v catalog.EntityView) {
	printKV([][2]string{
		{"name", v.Name},
		{"requires", formatList(v.FullRequirements)},
		{"allows", formatList(v.Allows)},
	})
}

func printOrder(v application.OrderSummary) {
	printKV([][2]string{
		{"race", v.Race},
		{"units", strconv.Itoa(len(v.UnitOrder))},
		{"costs", formatCosts(v.Costs)},
		{"active", formatList(v.Active)},
	})
	printSteps(v.UnitOrder)
}

func printBuild(v application.BuildSummary) {
	printKV([][2]string{
		{"key", v.Key},
		{"race", v.Race},
		{"tip", strconv.FormatUint(uint64(v.TipNodeID), 10)},
		{"costs", formatCosts(v.Costs)},
		{"active", formatList(v.Active)},
		{"updated_at", formatTime(v.UpdatedAt)},
	})
	printSteps(v.UnitOrder)
}

func printSteps(units []string) {
	rows := make([][]string, 0, len(units))
	for i, name := range units {
		rows = append(rows, []string{strconv.Itoa(i), name})
	}
	printTable([]string{"STEP", "UNIT"}, rows)
}

func printBuildRecords(items []application.BuildRecord) {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, []string{
			item.Key,
			item.Race,
			strconv.FormatUint(uint64(item.TipNodeID), 10),
			formatTime(item.UpdatedAt),
		})
	}
	printTable([]string{"KEY", "RACE", "TIP", "UPDATED_AT"}, rows)
}

func printFeatures(items []application.Feature) {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, []string{strconv.Itoa(item.Index), item.Unit, formatCosts(item.Costs), formatList(item.Allows)})
	}
	printTable([]string{"STEP", "UNIT", "SPENT", "ALLOWS"}, rows)
}

func printEvents(items []application.BuildEvent) {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		unit := item.Unit
		if unit == "" {
			unit = "-"
		}
		rows = append(rows, []string{formatTime(item.CreatedAt), item.Action, strconv.FormatUint(uint64(item.NodeID), 10), unit})
	}
	printTable([]string{"AT", "ACTION", "NODE", "UNIT"}, rows)
}

func printTech(v application.TechSummary) {
	if len(v.Tree) == 0 {
		fmt.Println("no results")
		return
	}
	for _, n := range v.Tree {
		printTechNode(n, 0)
	}
}

// printTechNode marks constructible entries with '*'; unmarked lines are path prefixes.
func printTechNode(n *buildorder.TechNode, depth int) {
	mark := " "
	if n.Available {
		mark = "*"
	}
	fmt.Printf("%s%s %s\n", strings.Repeat("  ", depth), mark, n.Name)
	for _, c := range n.Children {
		printTechNode(c, depth+1)
	}
}
