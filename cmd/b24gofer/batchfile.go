package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"b24gofer/internal/api"
	"b24gofer/internal/rest"
)

// batchFile is the -batch input. JSON files parse as YAML too.
//
//	halt: true
//	commands:
//	  - key: deal
//	    method: crm.deal.get
//	    params: {id: 1}
//	  - key: me
//	    method: user.current
//
// Commands without keys form a positional list; mixing both is an error.
type batchFile struct {
	Halt     bool           `yaml:"halt"`
	Commands []batchCommand `yaml:"commands"`
}

type batchCommand struct {
	Key    string                 `yaml:"key"`
	Method string                 `yaml:"method"`
	Params map[string]interface{} `yaml:"params"`
}

func loadBatchFile(path string) (*batchFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read batch file: %w", err)
	}

	var bf batchFile
	if err := yaml.Unmarshal(data, &bf); err != nil {
		return nil, fmt.Errorf("failed to parse batch file: %w", err)
	}
	if len(bf.Commands) == 0 {
		return nil, fmt.Errorf("batch file has no commands")
	}
	for i, cmd := range bf.Commands {
		if cmd.Method == "" {
			return nil, fmt.Errorf("command[%d]: method is required", i)
		}
	}
	return &bf, nil
}

// buildSet turns the file commands into a positional or keyed set
func (bf *batchFile) buildSet(client *api.Client) (*rest.Set, error) {
	keyed := bf.Commands[0].Key != ""

	requests := make([]*rest.Request, 0, len(bf.Commands))
	entries := make([]rest.Entry, 0, len(bf.Commands))
	for i, cmd := range bf.Commands {
		if (cmd.Key != "") != keyed {
			return nil, fmt.Errorf("command[%d]: either every command has a key or none does", i)
		}
		req := client.Call(cmd.Method, rest.ParamsFromMap(cmd.Params))
		requests = append(requests, req)
		entries = append(entries, rest.Entry{Key: cmd.Key, Request: req})
	}

	if !keyed {
		return rest.Seq(requests...), nil
	}
	return rest.Keyed(entries...)
}

// parseParams decodes the -params JSON object
func parseParams(raw string) (rest.Params, error) {
	if raw == "" {
		return nil, nil
	}
	var m map[string]interface{}
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("-params must be a JSON object: %w", err)
	}
	return rest.ParamsFromMap(m), nil
}
