package tools

import (
	"fmt"
	"sort"
)

const (
	typeString = "string"
	typeNumber = "number"
)

type argSpec struct {
	name        string
	typ         string
	description string
	required    bool
	defaultVal  interface{}
}

// Definition declares one tool: its name, description, and argument shape.
// The registry is immutable after startup and needs no synchronization.
type Definition struct {
	Name        string
	Description string
	args        []argSpec
}

// InputSchema renders the argument declaration as a JSON Schema object for
// tool discovery (tools/list and the HTTP tool listing).
func (d *Definition) InputSchema() map[string]interface{} {
	properties := map[string]interface{}{}
	var required []string

	for _, arg := range d.args {
		prop := map[string]interface{}{
			"type":        arg.typ,
			"description": arg.description,
		}
		if arg.defaultVal != nil {
			prop["default"] = arg.defaultVal
		}
		properties[arg.name] = prop
		if arg.required {
			required = append(required, arg.name)
		}
	}

	schema := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// parseArgs checks the argument mapping against the declaration and returns
// the normalized values (defaults applied, numbers coerced to int). Every
// offending key is reported, not just the first.
func (d *Definition) parseArgs(args map[string]interface{}) (map[string]interface{}, []string) {
	parsed := make(map[string]interface{}, len(d.args))
	var issues []string

	declared := make(map[string]*argSpec, len(d.args))
	for i := range d.args {
		declared[d.args[i].name] = &d.args[i]
	}

	var unknown []string
	for key := range args {
		if _, ok := declared[key]; !ok {
			unknown = append(unknown, key)
		}
	}
	sort.Strings(unknown)
	for _, key := range unknown {
		issues = append(issues, fmt.Sprintf("%s is not a recognized argument", key))
	}

	for _, arg := range d.args {
		value, present := args[arg.name]
		if !present || value == nil {
			if arg.required {
				issues = append(issues, fmt.Sprintf("%s is required", arg.name))
			} else if arg.defaultVal != nil {
				parsed[arg.name] = arg.defaultVal
			}
			continue
		}

		switch arg.typ {
		case typeString:
			s, ok := value.(string)
			if !ok {
				issues = append(issues, fmt.Sprintf("%s must be a string", arg.name))
				continue
			}
			parsed[arg.name] = s
		case typeNumber:
			n, ok := toInt(value)
			if !ok {
				issues = append(issues, fmt.Sprintf("%s must be an integer", arg.name))
				continue
			}
			parsed[arg.name] = n
		}
	}

	return parsed, issues
}

// toInt accepts the numeric representations seen across transports: float64
// from JSON decoding, int/int64 from in-process callers.
func toInt(value interface{}) (int, bool) {
	switch n := value.(type) {
	case float64:
		if n != float64(int(n)) {
			return 0, false
		}
		return int(n), true
	case int:
		return n, true
	case int64:
		return int(n), true
	}
	return 0, false
}

var registry = []Definition{
	{
		Name:        "get_printer_status",
		Description: "Get the current status of the configured printer: online state, print state, and the latest print task with its progress.",
	},
	{
		Name:        "get_ams_status",
		Description: "Get the AMS (Automatic Material System) filament slots for the configured printer: loaded filament types, colors, and remaining estimates.",
	},
	{
		Name:        "list_cloud_files",
		Description: "List print files stored in the account's cloud space.",
		args: []argSpec{
			{name: "limit", typ: typeNumber, description: "Maximum number of files to return (0 for the vendor default)", defaultVal: 0},
		},
	},
	{
		Name:        "upload_file",
		Description: "Upload a print file (.3mf, .gcode, or .gcode.3mf) to the account's cloud space. Content is base64-encoded.",
		args: []argSpec{
			{name: "file_name", typ: typeString, description: "Target file name including extension", required: true},
			{name: "content_base64", typ: typeString, description: "Base64-encoded file content", required: true},
		},
	},
	{
		Name:        "start_print",
		Description: "Start printing a cloud file on the configured printer.",
		args: []argSpec{
			{name: "file_id", typ: typeString, description: "Cloud file identifier, as returned by list_cloud_files or upload_file", required: true},
			{name: "plate_number", typ: typeNumber, description: "Build plate index within the file", defaultVal: 1},
		},
	},
	{
		Name:        "pause_print",
		Description: "Pause the print job currently running on the configured printer.",
	},
	{
		Name:        "resume_print",
		Description: "Resume a paused print job on the configured printer.",
	},
	{
		Name:        "cancel_print",
		Description: "Cancel the print job currently running on the configured printer.",
	},
	{
		Name:        "list_presets",
		Description: "List the account's slicer presets: filament, print, and printer profiles.",
	},
}

// Definitions returns the registered tools in a stable order.
func Definitions() []Definition {
	return registry
}

func lookup(name string) (*Definition, bool) {
	for i := range registry {
		if registry[i].Name == name {
			return &registry[i], true
		}
	}
	return nil, false
}
