package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/chrissnell/precipgen/internal/precip"
)

const dateLayout = "2006-01-02"

// missingMarkers are amount cells that mean "not observed".
var missingMarkers = map[string]bool{"": true, "NA": true, "NAN": true, "M": true, "-9999": true}

// readSeries parses an assembled daily series with DATE and PRCP columns.
// Other columns are ignored. Dates are YYYY-MM-DD.
func readSeries(r io.Reader) ([]precip.Observation, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: input has no header row", precip.ErrInsufficientData)
		}
		return nil, err
	}
	dateCol, amountCol := -1, -1
	for i, name := range header {
		switch strings.ToUpper(strings.TrimSpace(name)) {
		case "DATE":
			dateCol = i
		case "PRCP", "PRECIP", "AMOUNT":
			amountCol = i
		}
	}
	if dateCol < 0 || amountCol < 0 {
		return nil, fmt.Errorf("%w: header must name DATE and PRCP columns, got %v", precip.ErrValidation, header)
	}

	var obs []precip.Observation
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(rec) <= dateCol || len(rec) <= amountCol {
			return nil, fmt.Errorf("%w: line %d has %d fields", precip.ErrValidation, line, len(rec))
		}

		date, err := time.Parse(dateLayout, strings.TrimSpace(rec[dateCol]))
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: bad date %q", precip.ErrValidation, line, rec[dateCol])
		}

		cell := strings.TrimSpace(rec[amountCol])
		if missingMarkers[strings.ToUpper(cell)] {
			obs = append(obs, precip.MissingOn(date))
			continue
		}
		amount, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: bad amount %q", precip.ErrValidation, line, cell)
		}
		obs = append(obs, precip.Observed(date, amount))
	}
	return obs, nil
}
