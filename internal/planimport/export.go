package planimport

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/dukerupert/aideals/internal/model"
)

// Export writes plans in the import format with every field double-quoted.
func Export(w io.Writer, plans []model.ToolPlan) error {
	bw := bufio.NewWriter(w)
	writeRecord(bw, Columns)
	for _, p := range plans {
		price := ""
		if p.MonthlyPrice != nil {
			price = p.MonthlyPrice.StringFixed(2)
		}
		writeRecord(bw, []string{
			p.ToolID,
			p.PlanID,
			p.PlanName,
			price,
			p.DeliveryType,
			strconv.Itoa(p.ActivationTime),
			strconv.FormatBool(p.IsActive),
		})
	}
	return bw.Flush()
}

func writeRecord(w *bufio.Writer, fields []string) {
	for i, f := range fields {
		if i > 0 {
			w.WriteByte(',')
		}
		w.WriteByte('"')
		w.WriteString(strings.ReplaceAll(f, `"`, `""`))
		w.WriteByte('"')
	}
	w.WriteByte('\n')
}

// Filename is the download name for an export, scoped by tool when filtered.
func Filename(toolID string) string {
	if toolID == "" {
		return "plans-export.csv"
	}
	return "plans-" + toolID + "-export.csv"
}
