package sink

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/miradorstack/mirador-threatsim/internal/models"
	"github.com/miradorstack/mirador-threatsim/internal/utils"
)

// Columns is the ledger CSV layout, in order.
var Columns = []string{
	"timestamp",
	"source_ip",
	"user",
	"event_type",
	"message",
	"failed_attempts",
	"success_attempts",
	"latency_ms",
	"geolocation_risk",
	"privilege_level",
	"actual_scenario",
	"risk_score",
	"action",
	"detected_threat",
}

// WriteCSV writes the ledger with a header row. Unscored risk scores are written as NaN.
func WriteCSV(w io.Writer, ledger []models.ResultRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, rec := range ledger {
		if err := cw.Write(csvRow(rec)); err != nil {
			return fmt.Errorf("write record %d: %w", rec.Iteration, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteCSVFile writes the ledger to path, creating parent directories.
func WriteCSVFile(path string, ledger []models.ResultRecord) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := WriteCSV(f, ledger); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func csvRow(rec models.ResultRecord) []string {
	ev := rec.Event
	return []string{
		utils.FormatTimestamp(ev.Timestamp),
		ev.SourceIP,
		ev.User,
		ev.EventType,
		ev.Message,
		strconv.Itoa(ev.FailedAttempts),
		strconv.Itoa(ev.SuccessAttempts),
		strconv.Itoa(ev.LatencyMs),
		strconv.FormatFloat(ev.GeolocationRisk, 'f', -1, 64),
		strconv.Itoa(ev.PrivilegeLevel),
		string(rec.Scenario),
		strconv.FormatFloat(rec.Assessment.RiskScore, 'f', -1, 64),
		rec.Assessment.Action,
		strconv.FormatBool(rec.Detected),
	}
}

// ReadCSV parses a ledger written by WriteCSV. Column order may differ but
// every column must be present and no others are accepted.
func ReadCSV(r io.Reader) ([]models.ResultRecord, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("ledger csv is empty")
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	index, err := columnIndex(header)
	if err != nil {
		return nil, err
	}

	var ledger []models.ResultRecord
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		rec, err := parseRow(row, index)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		rec.Iteration = len(ledger)
		ledger = append(ledger, rec)
	}
	return ledger, nil
}

// ReadCSVFile reads a ledger from path.
func ReadCSVFile(path string) ([]models.ResultRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return ReadCSV(f)
}

func columnIndex(header []string) (map[string]int, error) {
	index := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimSpace(name)
		if _, dup := index[name]; dup {
			return nil, fmt.Errorf("duplicate column %q", name)
		}
		index[name] = i
	}
	for _, col := range Columns {
		if _, ok := index[col]; !ok {
			return nil, fmt.Errorf("missing column %q", col)
		}
	}
	if len(index) != len(Columns) {
		for name := range index {
			if !isColumn(name) {
				return nil, fmt.Errorf("unknown column %q", name)
			}
		}
	}
	return index, nil
}

func isColumn(name string) bool {
	for _, col := range Columns {
		if col == name {
			return true
		}
	}
	return false
}

func parseRow(row []string, index map[string]int) (models.ResultRecord, error) {
	field := func(name string) string { return strings.TrimSpace(row[index[name]]) }
	var parseErr error
	atoi := func(name string) int {
		n, err := strconv.Atoi(field(name))
		if err != nil && parseErr == nil {
			parseErr = fmt.Errorf("%s: %w", name, err)
		}
		return n
	}

	ts, err := utils.ParseTimestamp(field("timestamp"))
	if err != nil {
		return models.ResultRecord{}, fmt.Errorf("timestamp: %w", err)
	}
	geo, err := strconv.ParseFloat(field("geolocation_risk"), 64)
	if err != nil {
		return models.ResultRecord{}, fmt.Errorf("geolocation_risk: %w", err)
	}

	ev := models.LogEvent{
		Timestamp:       ts,
		SourceIP:        field("source_ip"),
		User:            field("user"),
		EventType:       field("event_type"),
		Message:         field("message"),
		FailedAttempts:  atoi("failed_attempts"),
		SuccessAttempts: atoi("success_attempts"),
		LatencyMs:       atoi("latency_ms"),
		GeolocationRisk: geo,
		PrivilegeLevel:  atoi("privilege_level"),
	}
	if parseErr != nil {
		return models.ResultRecord{}, parseErr
	}

	score := math.NaN()
	if raw := field("risk_score"); raw != "" {
		score, err = strconv.ParseFloat(raw, 64)
		if err != nil {
			return models.ResultRecord{}, fmt.Errorf("risk_score: %w", err)
		}
	}
	action := field("action")
	if action == "" {
		action = models.ActionUnknown
	}
	detected, err := strconv.ParseBool(field("detected_threat"))
	if err != nil {
		return models.ResultRecord{}, fmt.Errorf("detected_threat: %w", err)
	}

	scenario := models.Scenario(field("actual_scenario"))
	if scenario == "" {
		return models.ResultRecord{}, fmt.Errorf("actual_scenario is empty")
	}

	return models.ResultRecord{
		Event:      ev,
		Scenario:   scenario,
		Assessment: models.Assessment{RiskScore: score, Action: action},
		Detected:   detected,
	}, nil
}
