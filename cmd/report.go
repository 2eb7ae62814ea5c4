package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/jerry-enebeli/lockverify"
	"github.com/jerry-enebeli/lockverify/model"
)

type scenarioOutput struct {
	lockverify.ScenarioResult
	Error string `json:"error,omitempty"`
	Code  string `json:"code,omitempty"`
}

type reportOutput struct {
	RunID     string           `json:"run_id"`
	LockID    model.LockID     `json:"lock_id"`
	Passed    bool             `json:"passed"`
	Scenarios []scenarioOutput `json:"scenarios"`
}

func printReport(w io.Writer, report *lockverify.Report, format string) error {
	switch format {
	case "json":
		out := reportOutput{RunID: report.RunID, LockID: report.LockID, Passed: report.Passed()}
		for _, s := range report.Scenarios {
			so := scenarioOutput{ScenarioResult: s}
			if s.Err != nil {
				so.Error = s.Err.Error()
				so.Code = string(lockverify.CodeOf(s.Err))
			}
			out.Scenarios = append(out.Scenarios, so)
		}
		data, err := json.MarshalIndent(out, "", "    ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		_, err = fmt.Fprintln(w, string(data))
		return err

	case "table", "":
		table := tablewriter.NewWriter(w)
		table.Header("Scenario", "Status", "Attempts", "Duration", "Error")
		for _, s := range report.Scenarios {
			errText := ""
			if s.Err != nil {
				errText = fmt.Sprintf("%s: %v", lockverify.CodeOf(s.Err), s.Err)
			}
			if err := table.Append(s.Name, string(s.Status), fmt.Sprint(s.Attempts), s.Duration.Round(time.Millisecond).String(), errText); err != nil {
				return err
			}
		}
		if err := table.Render(); err != nil {
			return err
		}

		result := "PASSED"
		if !report.Passed() {
			result = "FAILED"
		}
		_, err := fmt.Fprintf(w, "\nRun %s, lock %s: %s\n", report.RunID, report.LockID, result)
		return err
	}
	return fmt.Errorf("unknown output format %q", format)
}

func printLock(w io.Writer, record model.LockRecord) error {
	data, err := json.MarshalIndent(record, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
