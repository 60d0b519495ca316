package database

import (
	"time"
)

// Batch is one analyzed batch. Child rows are written and preloaded through
// the associations.
type Batch struct {
	ID             string          `gorm:"primaryKey;column:id"`
	CreatedAt      time.Time       `gorm:"column:created_at;not null;index"`
	Metrics        []BatchMetric   `gorm:"foreignKey:BatchID;constraint:OnDelete:CASCADE"`
	Runs           []Run           `gorm:"foreignKey:BatchID;constraint:OnDelete:CASCADE"`
	ScoreColumns   []ScoreColumn   `gorm:"foreignKey:BatchID;constraint:OnDelete:CASCADE"`
	Scores         []Score         `gorm:"foreignKey:BatchID;constraint:OnDelete:CASCADE"`
	Failures       []RunFailure    `gorm:"foreignKey:BatchID;constraint:OnDelete:CASCADE"`
	MetricFailures []MetricFailure `gorm:"foreignKey:BatchID;constraint:OnDelete:CASCADE"`
}

// TableName specifies the table name for Batch
func (Batch) TableName() string {
	return "batches"
}

// BatchMetric is a tracked metric as configured for a batch.
type BatchMetric struct {
	ID         uint    `gorm:"primaryKey;autoIncrement;column:id"`
	BatchID    string  `gorm:"column:batch_id;not null;index"`
	Position   int     `gorm:"column:position;not null"`
	Name       string  `gorm:"column:name;not null"`
	ColumnName string  `gorm:"column:column_name;not null"`
	LowerBound float64 `gorm:"column:lower_bound"`
	UpperBound float64 `gorm:"column:upper_bound"`
}

func (BatchMetric) TableName() string {
	return "batch_metrics"
}

// Run is a successfully detected run. Nullable floats hold values that may
// be undefined.
type Run struct {
	ID                    uint           `gorm:"primaryKey;autoIncrement;column:id"`
	BatchID               string         `gorm:"column:batch_id;not null;uniqueIndex:idx_runs_batch_run"`
	RunID                 string         `gorm:"column:run_id;not null;uniqueIndex:idx_runs_batch_run"`
	Position              int            `gorm:"column:position;not null"`
	DisturbanceSignal     string         `gorm:"column:disturbance_signal"`
	DisturbanceStartIndex int            `gorm:"column:disturbance_start_index"`
	DisturbanceStartTime  float64        `gorm:"column:disturbance_start_time"`
	DisturbanceEndIndex   int            `gorm:"column:disturbance_end_index"`
	DisturbanceEndTime    float64        `gorm:"column:disturbance_end_time"`
	DisturbanceMagnitude  *float64       `gorm:"column:disturbance_magnitude"`
	Hardness              *float64       `gorm:"column:hardness"`
	Effects               []Effect       `gorm:"foreignKey:RunRef;constraint:OnDelete:CASCADE"`
	Parameters            []RunParameter `gorm:"foreignKey:RunRef;constraint:OnDelete:CASCADE"`
}

func (Run) TableName() string {
	return "runs"
}

// Effect is the effect window of one metric within a run.
type Effect struct {
	ID           uint     `gorm:"primaryKey;autoIncrement;column:id"`
	RunRef       uint     `gorm:"column:run_ref;not null;index"`
	Position     int      `gorm:"column:position;not null"`
	Metric       string   `gorm:"column:metric;not null"`
	ColumnName   string   `gorm:"column:column_name"`
	StartIndex   int      `gorm:"column:start_index"`
	StartTime    float64  `gorm:"column:start_time"`
	EndIndex     int      `gorm:"column:end_index"`
	EndTime      float64  `gorm:"column:end_time"`
	InitialValue *float64 `gorm:"column:initial_value"`
	MinValue     *float64 `gorm:"column:min_value"`
	MaxValue     *float64 `gorm:"column:max_value"`
}

func (Effect) TableName() string {
	return "effects"
}

// RunParameter is a scenario parameter extracted from a run.
type RunParameter struct {
	ID     uint     `gorm:"primaryKey;autoIncrement;column:id"`
	RunRef uint     `gorm:"column:run_ref;not null;index"`
	Name   string   `gorm:"column:name;not null"`
	Value  *float64 `gorm:"column:value"`
}

func (RunParameter) TableName() string {
	return "run_parameters"
}

// ScoreColumn fixes the column order of a batch's score tables.
type ScoreColumn struct {
	ID       uint   `gorm:"primaryKey;autoIncrement;column:id"`
	BatchID  string `gorm:"column:batch_id;not null;index"`
	Position int    `gorm:"column:position;not null"`
	Name     string `gorm:"column:name;not null"`
}

func (ScoreColumn) TableName() string {
	return "score_columns"
}

// Score holds one raw and normalized score cell.
type Score struct {
	ID              uint     `gorm:"primaryKey;autoIncrement;column:id"`
	BatchID         string   `gorm:"column:batch_id;not null;index"`
	RunID           string   `gorm:"column:run_id;not null"`
	ColumnName      string   `gorm:"column:column_name;not null"`
	RawValue        *float64 `gorm:"column:raw_value"`
	NormalizedValue *float64 `gorm:"column:normalized_value"`
}

func (Score) TableName() string {
	return "scores"
}

// RunFailure records a run excluded from scoring.
type RunFailure struct {
	ID       uint   `gorm:"primaryKey;autoIncrement;column:id"`
	BatchID  string `gorm:"column:batch_id;not null;index"`
	Position int    `gorm:"column:position;not null"`
	RunID    string `gorm:"column:run_id;not null"`
	Kind     string `gorm:"column:kind;not null"`
	Message  string `gorm:"column:message"`
}

func (RunFailure) TableName() string {
	return "run_failures"
}

// MetricFailure records a single undefined score.
type MetricFailure struct {
	ID         uint   `gorm:"primaryKey;autoIncrement;column:id"`
	BatchID    string `gorm:"column:batch_id;not null;index"`
	Position   int    `gorm:"column:position;not null"`
	RunID      string `gorm:"column:run_id;not null"`
	ColumnName string `gorm:"column:column_name;not null"`
	Message    string `gorm:"column:message"`
}

func (MetricFailure) TableName() string {
	return "metric_failures"
}

// AllModels lists every model in creation order for AutoMigrate.
func AllModels() []interface{} {
	return []interface{}{
		&Batch{}, &BatchMetric{}, &Run{}, &Effect{}, &RunParameter{},
		&ScoreColumn{}, &Score{}, &RunFailure{}, &MetricFailure{},
	}
}
