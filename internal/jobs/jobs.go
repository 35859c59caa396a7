// Package jobs holds the job-listing model shown after a scan run and the
// helpers for decoding listings out of a backend run payload.
package jobs

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/atspilot/atspilot/internal/backend"

	"github.com/mitchellh/mapstructure"
)

// MissingSkills are the skills a listing asks for that the scanned resume
// does not cover.
type MissingSkills struct {
	Required  []string `json:"required,omitempty"`
	Preferred []string `json:"preferred,omitempty"`
}

// Job is a single scanned listing with its ATS score against the resume.
type Job struct {
	ID        string        `json:"id,omitempty"`
	Title     string        `json:"title,omitempty"`
	Company   string        `json:"company,omitempty"`
	Location  string        `json:"location,omitempty"`
	ATSScore  int           `json:"atsScore,omitempty"`
	Missing   MissingSkills `json:"missing,omitempty"`
	ApplyURL  string        `json:"applyUrl,omitempty"`
	Source    string        `json:"source,omitempty"`
	ScannedAt string        `json:"scannedAt,omitempty"`
	JDText    string        `json:"jdText,omitempty"`
}

type Jobs struct {
	Items []*Job
}

func (j *Jobs) Len() int {
	return len(j.Items)
}

func (j *Jobs) FindByID(id string) *Job {
	for _, job := range j.Items {
		if job.ID == id {
			return job
		}
	}

	return nil
}

// SortByScore orders listings best match first.
func (j *Jobs) SortByScore() {
	sort.SliceStable(j.Items, func(a, b int) bool {
		return j.Items[a].ATSScore > j.Items[b].ATSScore
	})
}

// ReportByCompany groups listings per company for the report view.
func (j *Jobs) ReportByCompany() map[string][]map[string]string {
	report := make(map[string][]map[string]string)

	for _, job := range j.Items {
		key := job.Company
		if key == "" {
			key = "unknown"
		}

		report[key] = append(report[key], map[string]string{
			"title":             job.Title,
			"location":          job.Location,
			"ats_score":         fmt.Sprintf("%d", job.ATSScore),
			"apply_url":         job.ApplyURL,
			"missing required":  strings.Join(job.Missing.Required, ", "),
			"missing preferred": strings.Join(job.Missing.Preferred, ", "),
		})
	}

	return report
}

// DumpToTmpFile writes the listings as indented JSON to a temp file and
// returns its name.
func (j *Jobs) DumpToTmpFile() (string, error) {
	file, err := os.CreateTemp("", "jobs_*.json")
	if err != nil {
		return "", err
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(j); err != nil {
		return "", err
	}

	return file.Name(), nil
}

// resultPaths are the accepted locations of the listings array in a run
// payload, tried in order.
var resultPaths = []string{"result.jobs", "jobs", "result"}

// FromRunPayload decodes the job listings out of a terminal run payload. The
// backend nests the array differently across versions, so a few locations
// are tried; an empty collection is returned when none hold listings.
func FromRunPayload(raw map[string]any) (*Jobs, error) {
	for _, path := range resultPaths {
		v, ok := backend.LookupPath(raw, path)
		if !ok {
			continue
		}

		list, ok := v.([]any)
		if !ok {
			continue
		}

		var items []*Job

		cfg := &mapstructure.DecoderConfig{
			Result:  &items,
			TagName: "json",
			// Scores arrive as JSON numbers (float64) but the model
			// wants ints.
			WeaklyTypedInput: true,
		}

		decoder, err := mapstructure.NewDecoder(cfg)
		if err != nil {
			return nil, err
		}

		if err := decoder.Decode(list); err != nil {
			return nil, fmt.Errorf("decode job listings: %w", err)
		}

		return &Jobs{Items: items}, nil
	}

	return &Jobs{}, nil
}
