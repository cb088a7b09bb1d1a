// Command import-concepts bulk-loads a CSV of concepts (and optionally a CSV
// of concept properties) into a code system through the import engine. It
// talks straight to the database; run it from a box that can reach Postgres.
//
// Usage:
//
//	import-concepts -system http://example.org/cs \
//	    -concepts concepts.csv -properties properties.csv -enable-write
//
// concepts.csv rows:   code,display
// properties.csv rows: code,property,value
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.uber.org/zap"

	"github.com/rohitjsoftype/terminology-api/backends/db"
	"github.com/rohitjsoftype/terminology-api/services/codesystem"
	"github.com/rohitjsoftype/terminology-api/services/importer"
	"github.com/rohitjsoftype/terminology-api/validate"
)

var (
	systemURL      string
	conceptsPath   string
	propertiesPath string
	enableWrite    bool
	logLevel       string
)

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}

	return def
}

func setLogLevel() {
	logLevel = strings.ToLower(getenv("LOG_LEVEL", "info"))

	switch logLevel {
	case "debug":
		logrus.SetLevel(logrus.DebugLevel)
	case "warn":
		logrus.SetLevel(logrus.WarnLevel)
	default:
		logrus.SetLevel(logrus.InfoLevel)
	}
}

func main() {
	flag.StringVar(&systemURL, "system", "", "canonical URL of the target code system (required)")
	flag.StringVar(&conceptsPath, "concepts", "", "path to concepts CSV (code,display)")
	flag.StringVar(&propertiesPath, "properties", "", "path to properties CSV (code,property,value)")
	flag.BoolVar(&enableWrite, "enable-write", false, "actually write; without this flag the batch is validated and discarded")
	flag.Parse()

	if err := godotenv.Load(".env"); err != nil {
		logrus.WithError(err).Debug("no dotenv file loaded")
	}

	setLogLevel()

	if err := run(); err != nil {
		logrus.WithError(err).Fatal("import failed")
	}
}

func run() error {
	if systemURL == "" {
		return errors.New("-system is required")
	}

	if conceptsPath == "" && propertiesPath == "" {
		return errors.New("at least one of -concepts / -properties is required")
	}

	req := &importer.Request{
		System: systemURL,
		Principal: importer.Principal{
			ID:         "cli/import-concepts",
			SuperAdmin: true,
		},
	}

	if conceptsPath != "" {
		concepts, err := readConcepts(conceptsPath)
		if err != nil {
			return errors.Wrapf(err, "failed to read %s", conceptsPath)
		}

		req.Concepts = concepts
	}

	if propertiesPath != "" {
		properties, err := readProperties(propertiesPath)
		if err != nil {
			return errors.Wrapf(err, "failed to read %s", propertiesPath)
		}

		req.Properties = properties
	}

	if err := validate.ImportRequest(req); err != nil {
		return errors.Wrap(err, "batch failed validation")
	}

	logrus.WithFields(logrus.Fields{
		"system":     systemURL,
		"concepts":   len(req.Concepts),
		"properties": len(req.Properties),
	}).Info("batch loaded")

	if !enableWrite {
		logrus.Warn("dry run - re-run with -enable-write to import")
		return nil
	}

	port := 5432
	if _, err := fmt.Sscanf(getenv("TERMINOLOGY_API_DB_PORT", "5432"), "%d", &port); err != nil {
		return errors.Wrap(err, "invalid TERMINOLOGY_API_DB_PORT")
	}

	backend, err := db.New(&db.Options{
		User:     getenv("TERMINOLOGY_API_DB_USER", "terminology"),
		Password: getenv("TERMINOLOGY_API_DB_PASSWORD", "terminology"),
		Host:     getenv("TERMINOLOGY_API_DB_HOST", "localhost"),
		Port:     port,
		DBName:   getenv("TERMINOLOGY_API_DB_NAME", "terminology"),
		SSLMode:  getenv("TERMINOLOGY_API_DB_SSL_MODE", "disable"),
	})
	if err != nil {
		return errors.Wrap(err, "failed to setup database backend")
	}
	defer backend.Close()

	// The CLI is chatty through logrus; service internals still log through
	// zap, which we keep quiet here.
	zlog := zap.NewNop()

	codeSystemService, err := codesystem.New(&codesystem.Options{
		Backend: backend,
		Log:     zlog,
	})
	if err != nil {
		return errors.Wrap(err, "failed to setup code system service")
	}

	importService, err := importer.New(&importer.Options{
		Database:    importer.NewDatabase(backend),
		CodeSystems: codeSystemService,
		Log:         zlog,
	})
	if err != nil {
		return errors.Wrap(err, "failed to setup import service")
	}

	cs, err := importService.Import(context.Background(), req)
	if err != nil {
		outcome := importer.AsOutcome(err)
		return errors.Errorf("%s (%s)", outcome.Diagnostics, outcome.Kind)
	}

	logrus.WithFields(logrus.Fields{
		"system": cs.URL,
		"id":     cs.ID.String(),
	}).Info("import committed")

	return nil
}

func readConcepts(path string) ([]importer.Concept, error) {
	rows, err := readCSV(path, 1)
	if err != nil {
		return nil, err
	}

	concepts := make([]importer.Concept, 0, len(rows))

	for _, row := range rows {
		concept := importer.Concept{Code: row[0]}

		if len(row) > 1 {
			concept.Display = row[1]
		}

		concepts = append(concepts, concept)
	}

	return concepts, nil
}

func readProperties(path string) ([]importer.ImportedProperty, error) {
	rows, err := readCSV(path, 3)
	if err != nil {
		return nil, err
	}

	properties := make([]importer.ImportedProperty, 0, len(rows))

	for _, row := range rows {
		properties = append(properties, importer.ImportedProperty{
			Code:     row[0],
			Property: row[1],
			Value:    row[2],
		})
	}

	return properties, nil
}

func readCSV(path string, minFields int) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	var rows [][]string
	line := 0

	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}

		if err != nil {
			return nil, err
		}

		line++

		if len(row) < minFields {
			return nil, fmt.Errorf("line %d: expected at least %d fields, got %d",
				line, minFields, len(row))
		}

		rows = append(rows, row)
	}

	return rows, nil
}
