package parser

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/dgallion1/pageview/internal/doctree"
)

// CSVParser handles CSV files.
type CSVParser struct{}

func (p *CSVParser) Parse(r io.Reader, filename string) (*doctree.DocTree, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}

	tree := &doctree.DocTree{
		Title: strings.TrimSuffix(filename, ".csv"),
	}

	if len(records) == 0 {
		return tree, nil
	}

	// First row is headers.
	headers := records[0]

	// Group rows into batches of 20, each batch a linkable section.
	const batchSize = 20
	dataRows := records[1:]

	for i := 0; i < len(dataRows); i += batchSize {
		end := i + batchSize
		if end > len(dataRows) {
			end = len(dataRows)
		}
		batch := dataRows[i:end]

		first, last := i+2, end+1 // 1-indexed, skip header
		section := &doctree.DocNode{
			Kind:   doctree.KindSection,
			Level:  2,
			Anchor: fmt.Sprintf("rows-%d-%d", first, last),
			Runs:   doctree.PlainRuns(fmt.Sprintf("Rows %d-%d", first, last)),
		}
		for _, row := range batch {
			var text strings.Builder
			for j, cell := range row {
				if j < len(headers) {
					text.WriteString(headers[j] + ": " + cell)
				} else {
					text.WriteString(cell)
				}
				if j < len(row)-1 {
					text.WriteString(", ")
				}
			}
			section.Children = append(section.Children, &doctree.DocNode{
				Kind: doctree.KindParagraph,
				Runs: doctree.PlainRuns(text.String()),
			})
		}
		tree.Children = append(tree.Children, section)
	}

	return tree, nil
}
