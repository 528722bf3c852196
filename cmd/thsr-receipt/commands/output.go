package commands

import (
	"encoding/json"
	"fmt"
	"io"
)

// Result is the single line printed in --json mode.
type Result struct {
	Success  bool   `json:"success"`
	FilePath string `json:"filePath,omitempty"`
	FileName string `json:"fileName,omitempty"`
	Folder   string `json:"folder,omitempty"`
	Error    string `json:"error,omitempty"`
}

type reporter struct {
	json   bool
	stdout io.Writer
	stderr io.Writer
}

// status prints a progress line, --json mode keeps stdout for the result.
func (r reporter) status(format string, args ...any) {
	if r.json {
		return
	}
	fmt.Fprintf(r.stdout, format+"\n", args...)
}

func (r reporter) writeJson(result Result) {
	encoder := json.NewEncoder(r.stdout)
	encoder.SetEscapeHTML(false)
	err := encoder.Encode(result)
	if err != nil {
		fmt.Fprintln(r.stderr, err)
	}
}

func (r reporter) success(result Result) {
	result.Success = true
	if r.json {
		r.writeJson(result)
		return
	}
	fmt.Fprintf(r.stdout, "Saved receipt to %s\n", result.FilePath)
}

func (r reporter) failure(err error) {
	if r.json {
		r.writeJson(Result{Success: false, Error: err.Error()})
		return
	}
	fmt.Fprintf(r.stderr, "Error: %s\n", err.Error())
}
