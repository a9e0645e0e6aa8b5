package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Timestamp layouts stamped onto every task of a run.
const (
	InLayout  = "2006-01-02 15:04:05"
	OutLayout = "2006_01_02_150405"
)

// Timestamps is the extraction instant rendered for logs, file names and
// date partitioning. All tasks of one run share the same value.
type Timestamps struct {
	Now   time.Time `yaml:"-"`
	In    string    `yaml:"-"`
	Out   string    `yaml:"-"`
	Year  string    `yaml:"-"`
	Month string    `yaml:"-"`
	Day   string    `yaml:"-"`
}

// NewTimestamps renders t in UTC.
func NewTimestamps(t time.Time) Timestamps {
	t = t.UTC()
	return Timestamps{
		Now:   t,
		In:    t.Format(InLayout),
		Out:   t.Format(OutLayout),
		Year:  fmt.Sprintf("%d", t.Year()),
		Month: fmt.Sprintf("%02d", int(t.Month())),
		Day:   fmt.Sprintf("%02d", t.Day()),
	}
}

// Details names what a task works on.
type Details struct {
	Product   string `yaml:"product" validate:"required"`
	Subject   string `yaml:"subject" validate:"required"`
	TaskTitle string `yaml:"task_title" validate:"required"`
}

// Destination is where a load task writes. Which fields apply depends on
// the sink.
type Destination struct {
	Bucket   string `yaml:"bucket"`
	FileType string `yaml:"file_type" validate:"omitempty,oneof=parquet csv json xlsx"`
	Database string `yaml:"database"`
	Schema   string `yaml:"schema"`
	Table    string `yaml:"table"`
}

// Data describes the origin and destination of a task.
type Data struct {
	Origin       string      `yaml:"origin" validate:"required"`
	SourceMethod string      `yaml:"source_method" validate:"required"`
	Destination  Destination `yaml:"destination"`
	// Options carries source specific knobs such as categories or lookback days.
	Options map[string]any `yaml:"options"`
}

// Secrets points at the vault entry holding the task's credentials.
type Secrets struct {
	MountPoint string `yaml:"mount_point" validate:"required"`
	Path       string `yaml:"path" validate:"required"`
}

// Task is one step definition of a flow.
type Task struct {
	Details    Details    `yaml:"DETAILS" validate:"required"`
	Data       Data       `yaml:"DATA" validate:"required"`
	Secrets    Secrets    `yaml:"SECRETS" validate:"required"`
	Timestamps Timestamps `yaml:"-"`
}

// Title is the task title used as the job title of its results.
func (t Task) Title() string {
	return t.Details.TaskTitle
}

// QualifiedTable is "{schema}.{source_method}_{table}".
func (t Task) QualifiedTable() (schema, table string) {
	return t.Data.Destination.Schema, t.Data.SourceMethod + "_" + t.Data.Destination.Table
}

// Option returns a string option or the fallback.
func (t Task) Option(key, fallback string) string {
	if v, ok := t.Data.Options[key]; ok && v != nil {
		return fmt.Sprint(v)
	}
	return fallback
}

// OptionList returns a list option; a scalar becomes a one-element list.
func (t Task) OptionList(key string) []string {
	v, ok := t.Data.Options[key]
	if !ok || v == nil {
		return nil
	}
	if list, ok := v.([]any); ok {
		out := make([]string, 0, len(list))
		for _, item := range list {
			out = append(out, fmt.Sprint(item))
		}
		return out
	}
	return []string{fmt.Sprint(v)}
}

// Document is the YAML layout of a flow's task file.
type Document struct {
	Tasks []Task `yaml:"TASKS" validate:"required,min=1,dive"`
}

// Tasks is the ordered, stamped task list of one flow.
type Tasks []Task

// ErrTaskIndex is returned by At when a flow asks for a task its document lacks.
var ErrTaskIndex = errors.New("task index out of range")

// At returns the i-th task.
func (ts Tasks) At(i int) (Task, error) {
	if i < 0 || i >= len(ts) {
		return Task{}, fmt.Errorf("%w: %d of %d", ErrTaskIndex, i, len(ts))
	}
	return ts[i], nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// LoadTasks reads, validates and stamps the task document at path.
func LoadTasks(path string, now time.Time) (Tasks, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read task file %s: %w", path, err)
	}
	return ParseTasks(data, now)
}

// ParseTasks parses a task document and stamps every task with the same
// timestamps derived from now.
func ParseTasks(data []byte, now time.Time) (Tasks, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse task document: %w", err)
	}
	for i := range doc.Tasks {
		d := &doc.Tasks[i].Data.Destination
		d.FileType = strings.ToLower(strings.TrimSpace(d.FileType))
	}
	if err := validate.Struct(doc); err != nil {
		return nil, fmt.Errorf("validate task document: %w", err)
	}

	ts := NewTimestamps(now)
	tasks := make(Tasks, len(doc.Tasks))
	for i, t := range doc.Tasks {
		t.Timestamps = ts
		tasks[i] = t
	}
	return tasks, nil
}

// TaskFile is the conventional location of a flow's task document.
func TaskFile(dir, flow string) string {
	return filepath.Join(dir, flow+".yaml")
}
