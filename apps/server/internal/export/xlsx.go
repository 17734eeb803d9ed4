// Package export renders override rules as an XLSX workbook for review
// outside the admin console.
package export

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"scholaverse/apps/server/internal/rulestore"
	"scholaverse/scoring"
)

const (
	RulesSheet   = "Rules"
	SummarySheet = "Summary"
)

var ruleHeaders = []string{"ID", "Unit", "Attribute", "Tier", "Sort Order", "Options", "Labels", "Updated At"}

// WriteRulesXLSX writes rules in the given order to w. Rules whose payload
// cannot be decoded are exported with their raw stored text.
func WriteRulesXLSX(w io.Writer, rules []scoring.AttributeRule) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", RulesSheet); err != nil {
		return err
	}
	if _, err := f.NewSheet(SummarySheet); err != nil {
		return err
	}

	for i, h := range ruleHeaders {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		f.SetCellValue(RulesSheet, cell, h)
	}
	headerStyleID, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return err
	}
	lastHeader, _ := excelize.CoordinatesToCellName(len(ruleHeaders), 1)
	if err := f.SetCellStyle(RulesSheet, "A1", lastHeader, headerStyleID); err != nil {
		return err
	}

	counts := make(map[string]int)
	for i, rule := range rules {
		row := i + 2
		optionsText, labelsText := payloadText(rule)
		values := []any{
			rule.ID,
			rule.Group,
			rule.Attribute,
			rule.Tier.String(),
			rule.SortOrder,
			optionsText,
			labelsText,
			rule.UpdatedAt.UTC().Format(time.RFC3339),
		}
		if err := f.SetSheetRow(RulesSheet, fmt.Sprintf("A%d", row), &values); err != nil {
			return err
		}
		counts[rule.Group]++
	}
	if len(rules) > 0 {
		lastCell, _ := excelize.CoordinatesToCellName(len(ruleHeaders), len(rules)+1)
		if err := f.AutoFilter(RulesSheet, "A1:"+lastCell, nil); err != nil {
			return err
		}
	}
	_ = f.SetColWidth(RulesSheet, "F", "G", 60)

	f.SetCellValue(SummarySheet, "A1", "Unit")
	f.SetCellValue(SummarySheet, "B1", "Rules")
	if err := f.SetCellStyle(SummarySheet, "A1", "B1", headerStyleID); err != nil {
		return err
	}
	groups := make([]string, 0, len(counts))
	for g := range counts {
		groups = append(groups, g)
	}
	sort.Strings(groups)
	for i, g := range groups {
		f.SetCellValue(SummarySheet, fmt.Sprintf("A%d", i+2), g)
		f.SetCellValue(SummarySheet, fmt.Sprintf("B%d", i+2), counts[g])
	}

	if idx, err := f.GetSheetIndex(RulesSheet); err == nil {
		f.SetActiveSheet(idx)
	}
	_, err = f.WriteTo(w)
	return err
}

func payloadText(rule scoring.AttributeRule) (string, string) {
	options, labels, err := rulestore.Payload(rule)
	if err != nil {
		return rule.OptionsJSON, rule.LabelsJSON
	}
	parts := make([]string, 0, len(options))
	for _, key := range options {
		if label, ok := labels[key]; ok && label != key {
			parts = append(parts, fmt.Sprintf("%s=%s", key, label))
		} else {
			parts = append(parts, key)
		}
	}
	return strings.Join(options, ", "), strings.Join(parts, "; ")
}
