package checkup

import (
	"sort"
	"time"

	"github.com/partnerhealth/report-core/internal/model"
)

// Row is one raw screening row as delivered by a provider.
type Row struct {
	Date   string            `json:"date"` // YYYYMMDD or YYYY-MM-DD
	Values map[string]string `json:"values"`
}

// Aggregate folds raw rows into a single dataset. Rows are applied oldest
// first so the most recent screening wins per metric, while metrics only
// measured in an older screening are kept.
func Aggregate(userID, source string, rows []Row, prescriptionCount int, now time.Time) *model.CheckupDataset {
	sorted := make([]Row, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool {
		return normalizeDate(sorted[i].Date) < normalizeDate(sorted[j].Date)
	})

	ds := &model.CheckupDataset{
		UserID:            userID,
		Source:            source,
		Metrics:           make(map[model.Metric]float64),
		CheckupCount:      len(rows),
		PrescriptionCount: prescriptionCount,
		UpdatedAt:         now,
	}
	for _, r := range sorted {
		for m, v := range Normalize(r.Values) {
			ds.Metrics[m] = v
		}
		if d := normalizeDate(r.Date); d != "" {
			ds.CheckupDate = d
		}
	}
	return ds
}

// normalizeDate returns YYYY-MM-DD for the two formats providers send, or
// the input unchanged otherwise.
func normalizeDate(d string) string {
	if len(d) == 8 {
		if t, err := time.Parse("20060102", d); err == nil {
			return t.Format(time.DateOnly)
		}
	}
	return d
}
