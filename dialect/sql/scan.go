package sql

import (
	"errors"

	"github.com/jmoiron/sqlx"
)

// ScanMaps reads all remaining rows into maps keyed by column name and
// closes rows. Text values returned by the driver as []byte are converted
// to strings.
func ScanMaps(rows ColumnScanner) (result []map[string]any, err error) {
	defer func() {
		err = errors.Join(err, rows.Close())
	}()
	for rows.Next() {
		row := make(map[string]any)
		if err := sqlx.MapScan(rows, row); err != nil {
			return nil, err
		}
		for k, v := range row {
			if b, ok := v.([]byte); ok {
				row[k] = string(b)
			}
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
