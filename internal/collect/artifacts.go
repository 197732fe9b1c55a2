package collect

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/market-intel/internal/model"
)

var csvHeader = []string{"title", "summary", "url", "source", "full_content"}

// writeArtifacts serializes the collected documents into the run
// workspace as JSON, CSV and XLSX so a run's inputs can be inspected
// without replaying it. Each format is attempted independently.
func writeArtifacts(dir, domain string, docs []model.Document) error {
	stem := ArtifactStem(domain)
	var firstErr error

	if err := writeJSON(filepath.Join(dir, stem+"_data_sources.json"), docs); err != nil {
		zap.L().Error("collect: json artifact failed", zap.Error(err))
		firstErr = err
	}
	if err := writeCSV(filepath.Join(dir, stem+"_data_sources.csv"), docs); err != nil {
		zap.L().Error("collect: csv artifact failed", zap.Error(err))
		if firstErr == nil {
			firstErr = err
		}
	}
	if err := writeXLSX(filepath.Join(dir, stem+"_data_sources.xlsx"), docs); err != nil {
		zap.L().Error("collect: xlsx artifact failed", zap.Error(err))
		if firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// ArtifactStem lowercases the domain and replaces spaces so it can be
// used as a filename prefix.
func ArtifactStem(domain string) string {
	return strings.ReplaceAll(strings.ToLower(domain), " ", "_")
}

func writeJSON(path string, docs []model.Document) error {
	data, err := json.MarshalIndent(docs, "", "    ")
	if err != nil {
		return eris.Wrap(err, "artifacts: marshal documents")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrap(err, "artifacts: write json")
	}
	return nil
}

func writeCSV(path string, docs []model.Document) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, "artifacts: create csv")
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		return eris.Wrap(err, "artifacts: write csv header")
	}
	for _, doc := range docs {
		row := []string{doc.Title, doc.Summary, doc.URL, doc.Source, doc.FullText}
		if err := w.Write(row); err != nil {
			return eris.Wrap(err, "artifacts: write csv row")
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return eris.Wrap(err, "artifacts: flush csv")
	}
	return nil
}

func writeXLSX(path string, docs []model.Document) error {
	file := xlsx.NewFile()
	sheet, err := file.AddSheet("Data Sources")
	if err != nil {
		return eris.Wrap(err, "artifacts: add xlsx sheet")
	}

	header := sheet.AddRow()
	for _, col := range csvHeader {
		header.AddCell().SetString(col)
	}
	for _, doc := range docs {
		row := sheet.AddRow()
		row.AddCell().SetString(doc.Title)
		row.AddCell().SetString(doc.Summary)
		row.AddCell().SetString(doc.URL)
		row.AddCell().SetString(doc.Source)
		row.AddCell().SetString(doc.FullText)
	}
	if err := file.Save(path); err != nil {
		return eris.Wrap(err, "artifacts: save xlsx")
	}
	return nil
}
