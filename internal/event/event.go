package event

import (
	"log/slog"
	"time"
)

// Type identifies the kind of event.
type Type int

const (
	Status Type = iota + 1
	ItemStart
	ItemDone
	ProgressUpdate
	TargetSwitch
	TargetFullStats
	Log
	Done
	Cancelled
	Error
)

var typeNames = [...]string{
	Status:          "Status",
	ItemStart:       "ItemStart",
	ItemDone:        "ItemDone",
	ProgressUpdate:  "ProgressUpdate",
	TargetSwitch:    "TargetSwitch",
	TargetFullStats: "TargetFullStats",
	Log:             "Log",
	Done:            "Done",
	Cancelled:       "Cancelled",
	Error:           "Error",
}

func (t Type) String() string {
	if t > 0 && int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "Unknown"
}

// Terminal reports whether t ends a run.
func (t Type) Terminal() bool {
	return t == Done || t == Cancelled || t == Error
}

// Scope says whether a Status event is about a directory or a single item.
type Scope int

const (
	ScopeDirectory Scope = iota + 1
	ScopeItem
)

func (s Scope) String() string {
	switch s {
	case ScopeDirectory:
		return "directory"
	case ScopeItem:
		return "item"
	default:
		return "unknown"
	}
}

// Failure is one item that could not be processed during a run.
type Failure struct {
	Path   string
	Reason string
}

// Event is a single progress or outcome notification from the engine.
// Which fields are meaningful depends on Type:
//
//	Status           Scope, Path, Message, DstPath
//	ItemStart        Path, DstPath, Index, Total
//	ItemDone         Path, DstPath, Success
//	ProgressUpdate   Items, Bytes (cumulative for the run)
//	TargetSwitch     Index, Path
//	TargetFullStats  Path, Items, Bytes, LastItem
//	Log              Level, Message
//	Done, Cancelled  Items, Bytes, Failed
//	Error            Message, Failed
type Event struct {
	Type      Type
	Timestamp time.Time
	Scope     Scope
	Path      string
	DstPath   string
	Message   string
	LastItem  string
	Index     int
	Total     int
	Items     int64
	Bytes     int64
	Success   bool
	Level     slog.Level
	Failed    []Failure
}
