package main

import (
	"encoding/json"
	"io"
	"os"
	"time"
)

type commandOutput struct {
	Command    string `json:"command"`
	DurationMS int64  `json:"duration_ms"`
	Result     any    `json:"result"`
}

var stdout io.Writer = os.Stdout

func writeJSON(v any) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeResult(command string, start time.Time, result any) error {
	return writeJSON(commandOutput{
		Command:    command,
		DurationMS: time.Since(start).Milliseconds(),
		Result:     result,
	})
}
