package daemon

import (
	"encoding/json"
	"time"

	"github.com/wardenhq/warden/internal/audit"
	"github.com/wardenhq/warden/internal/tool"
)

// redactedInputFields and redactedOutputFields name the request/response
// fields that carry file or patch bodies rather than call metadata: a path,
// a byte count, a branch name are safe to keep for replay and debugging;
// file contents, diff bodies, and commit messages are not, and env values
// may carry secrets outright.
var redactedInputFields = map[string][]string{
	"fs.apply_patch": {"patchUnified"},
	"vcs.commit":     {"message"},
	"cmd.run":        {"env"},
}

var redactedOutputFields = map[string][]string{
	"fs.read":  {"content"},
	"vcs.diff": {"diff"},
}

const redactedPlaceholder = `"[redacted]"`

// redactFields replaces each named top-level field present in raw with a
// placeholder, leaving every other field untouched. raw is returned as-is
// if it isn't a JSON object or none of fields are present.
func redactFields(raw json.RawMessage, fields []string) json.RawMessage {
	if len(raw) == 0 || len(fields) == 0 {
		return raw
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return raw
	}
	redacted := false
	for _, f := range fields {
		if _, ok := m[f]; ok {
			m[f] = json.RawMessage(redactedPlaceholder)
			redacted = true
		}
	}
	if !redacted {
		return raw
	}
	out, err := json.Marshal(m)
	if err != nil {
		return raw
	}
	return json.RawMessage(out)
}

// auditEntryFor builds the C9 audit record for one tools.call dispatch,
// redacting the fields listed above before anything is written to durable
// storage. The token never flows through the tool layer at all (§7), so it
// needs no redaction here.
func auditEntryFor(runID, toolName string, params json.RawMessage, result any, tErr *tool.Error, dur time.Duration) audit.Entry {
	entry := audit.Entry{
		RunID:      runID,
		Type:       audit.TypeToolCall,
		Tool:       toolName,
		Input:      redactFields(params, redactedInputFields[toolName]),
		DurationMS: dur.Milliseconds(),
	}
	if tErr != nil {
		entry.Error = tErr
		return entry
	}

	outFields := redactedOutputFields[toolName]
	if len(outFields) == 0 {
		entry.Output = result
		return entry
	}
	raw, err := json.Marshal(result)
	if err != nil {
		entry.Output = result
		return entry
	}
	entry.Output = redactFields(json.RawMessage(raw), outFields)
	return entry
}
