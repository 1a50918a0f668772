package workbook

import (
	"context"

	"github.com/tyemirov/cellarcrm/internal/lazycache"
)

// TableFetcher reads the table layout and rows.
type TableFetcher interface {
	FetchLayout(ctx context.Context) (Layout, error)
	FetchRows(ctx context.Context) ([]RawRow, error)
}

// Row is one table row keyed by column name.
type Row struct {
	Index  int               `json:"index"`
	Values map[string]string `json:"values"`
}

// Sheet is the Linther Liste as served to the frontend.
type Sheet struct {
	Columns []string `json:"columns"`
	Rows    []Row    `json:"rows"`
}

// Service joins rows with the cached column layout.
type Service struct {
	fetcher TableFetcher
	layout  *lazycache.Cache[Layout]
}

// NewService wires the fetcher with a layout cache. A nil cache gets a fresh one.
func NewService(fetcher TableFetcher, layoutCache *lazycache.Cache[Layout]) *Service {
	if layoutCache == nil {
		layoutCache = lazycache.New[Layout](fetcher.FetchLayout)
	}
	return &Service{fetcher: fetcher, layout: layoutCache}
}

// Sheet returns every row mapped onto the column names. A row whose width disagrees with
// the cached layout triggers one layout reload.
func (service *Service) Sheet(ctx context.Context) (Sheet, error) {
	layout, err := service.layout.Get(ctx)
	if err != nil {
		return Sheet{}, err
	}
	rawRows, err := service.fetcher.FetchRows(ctx)
	if err != nil {
		return Sheet{}, err
	}
	if !layoutFits(layout, rawRows) {
		service.layout.Invalidate()
		if layout, err = service.layout.Get(ctx); err != nil {
			return Sheet{}, err
		}
	}
	sheet := Sheet{Columns: layout.Names(), Rows: make([]Row, 0, len(rawRows))}
	for _, rawRow := range rawRows {
		row := Row{Index: rawRow.Index, Values: make(map[string]string, len(layout.Columns))}
		for _, column := range layout.Columns {
			value := ""
			if column.Index >= 0 && column.Index < len(rawRow.Values) {
				value = rawRow.Values[column.Index]
			}
			row.Values[column.Name] = value
		}
		sheet.Rows = append(sheet.Rows, row)
	}
	return sheet, nil
}

// ResetLayout forgets the cached column layout.
func (service *Service) ResetLayout() {
	service.layout.Invalidate()
}

func layoutFits(layout Layout, rows []RawRow) bool {
	for _, row := range rows {
		if len(row.Values) != len(layout.Columns) {
			return false
		}
	}
	return true
}
