package utils

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"surgeWatch/internal/domain"
)

// WriteUniverseToCSV writes one row per ticker, sorted by 24h quote volume
// descending, flagging the symbols present in eligible.
func WriteUniverseToCSV(stats []domain.TickerStat, eligible []string, filename string) error {
	if dir := filepath.Dir(filename); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory for %s: %w", filename, err)
		}
	}
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	isEligible := make(map[string]bool, len(eligible))
	for _, s := range eligible {
		isEligible[s] = true
	}

	rows := append([]domain.TickerStat(nil), stats...)
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].QuoteVolume24h > rows[j].QuoteVolume24h })

	writer := csv.NewWriter(file)

	// Write header
	if err := writer.Write([]string{"symbol", "quote_volume_24h", "last_price", "price_change_pct", "eligible"}); err != nil {
		return err
	}

	for _, s := range rows {
		if err := writer.Write([]string{
			s.Symbol,
			strconv.FormatFloat(s.QuoteVolume24h, 'f', -1, 64),
			strconv.FormatFloat(s.LastPrice, 'f', -1, 64),
			strconv.FormatFloat(s.PriceChangePct, 'f', -1, 64),
			strconv.FormatBool(isEligible[s.Symbol]),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
