// Package validator checks a submitted event batch against the PII,
// schema, and hour-alignment rules before anything reaches the queue.
//
// The package performs no I/O: every function here is a pure, deterministic
// walk over an already-json.Unmarshal'd value. Keeping it pure is what lets
// the ingestion handler reject a bad batch before any queue or database
// round trip is attempted.
package validator

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/oceanview/analytics-collector/internal/eventmodel"
)

const (
	maxBatchSize = 100
	maxPIIDepth  = 10
)

// piiKeys is the closed set of field names that disqualify an event at any
// nesting depth, regardless of where in the JSON tree they appear.
var piiKeys = map[string]struct{}{
	"latitude": {}, "longitude": {}, "lat": {}, "lon": {}, "location": {},
	"user_id": {}, "ip": {}, "email": {}, "name": {}, "address": {},
	"phone": {}, "city": {}, "zip": {}, "postal": {},
}

// validate runs the per-field leaf checks (oneof/len/min/max) declared as
// struct tags on eventLeaf. Everything else in validateEvent — the PII
// sweep, tool membership against eventmodel.Tools, timestamp parsing and
// hour-alignment, and the error/level cross-field rule — needs either an
// untyped recursive walk or cross-field logic a struct tag can't express,
// so it stays hand-rolled.
var validate = validator.New()

// eventLeaf carries only the fields whose constraints are simple per-field
// checks: closed enums, bounded integers, fixed-length strings.
// Pointer fields are tagged omitempty: a nil pointer means the key was absent
// from the payload (collectStandardFields/collectDetailedFields only ever
// set the pointer when the key is present), and without omitempty
// go-playground/validator reports a nil pointer as failing its tag. For a
// non-nil pointer omitempty still runs the checks, so a present-but-zero-value
// pointer (e.g. country: "") fails its len check.
type eventLeaf struct {
	Version        string  `validate:"required,max=20"`
	Status         string  `validate:"required,oneof=success error"`
	Level          string  `validate:"required,oneof=minimal standard detailed"`
	ResponseTimeMs *int    `validate:"omitempty,min=0,max=120000"`
	Service        *string `validate:"omitempty,oneof=noaa openmeteo"`
	RetryCount     *int    `validate:"omitempty,min=0,max=10"`
	Country        *string `validate:"omitempty,len=2"`
	ErrorType      *string `validate:"omitempty,max=100"`
	SessionID      *string `validate:"omitempty,len=16"`
	SequenceNumber *int    `validate:"omitempty,min=0"`
}

// ValidationError names the offending element and the rule it broke.
type ValidationError struct {
	Index int
	Rule  string
}

func (e ValidationError) String() string {
	return fmt.Sprintf("Event %d: %s", e.Index, e.Rule)
}

// Batch is the result of successfully validating a raw submission.
type Batch struct {
	Events []eventmodel.Event
}

// ValidateBatch validates a parsed `{"events": [...]}` body. On success it
// returns the normalized, typed batch; on failure, a non-empty list of
// ValidationErrors naming every offending element (not just the first).
func ValidateBatch(body map[string]interface{}) (Batch, []ValidationError) {
	rawEvents, ok := body["events"].([]interface{})
	if !ok {
		return Batch{}, []ValidationError{{Index: -1, Rule: "events must be a non-empty array"}}
	}
	if len(rawEvents) == 0 {
		return Batch{}, []ValidationError{{Index: -1, Rule: "events must be a non-empty array"}}
	}
	if len(rawEvents) > maxBatchSize {
		return Batch{}, []ValidationError{{Index: -1, Rule: fmt.Sprintf("batch exceeds the %d event limit", maxBatchSize)}}
	}

	var errs []ValidationError
	events := make([]eventmodel.Event, 0, len(rawEvents))

	for i, raw := range rawEvents {
		if err := piiSweep(raw, 0); err != nil {
			errs = append(errs, ValidationError{Index: i, Rule: "contains PII (rejected for privacy)"})
			continue
		}

		obj, ok := raw.(map[string]interface{})
		if !ok {
			errs = append(errs, ValidationError{Index: i, Rule: "event must be a JSON object"})
			continue
		}

		ev, ruleErrs := validateEvent(obj)
		if len(ruleErrs) > 0 {
			for _, r := range ruleErrs {
				errs = append(errs, ValidationError{Index: i, Rule: r})
			}
			continue
		}
		events = append(events, ev)
	}

	if len(errs) > 0 {
		return Batch{}, errs
	}
	return Batch{Events: events}, nil
}

// piiSweep recursively walks v, rejecting any map containing a key from the
// PII set. depth is bounded at maxPIIDepth to keep this allocation- and
// time-bounded regardless of how deeply a malicious payload is nested.
func piiSweep(v interface{}, depth int) error {
	if depth > maxPIIDepth {
		return fmt.Errorf("exceeds max nesting depth")
	}
	switch t := v.(type) {
	case map[string]interface{}:
		for k, val := range t {
			if _, isPII := piiKeys[strings.ToLower(k)]; isPII {
				return fmt.Errorf("PII key %q present", k)
			}
			if err := piiSweep(val, depth+1); err != nil {
				return err
			}
		}
	case []interface{}:
		for _, item := range t {
			if err := piiSweep(item, depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateEvent(obj map[string]interface{}) (eventmodel.Event, []string) {
	var rules []string
	var ev eventmodel.Event
	var leaf eventLeaf

	version, _ := obj["version"].(string)
	leaf.Version = version
	ev.Version = version

	tool, _ := obj["tool"].(string)
	if !eventmodel.IsValidTool(tool) {
		rules = append(rules, "tool must be one of the recognized tool identifiers")
	}
	ev.Tool = tool

	statusStr, _ := obj["status"].(string)
	leaf.Status = statusStr
	ev.Status = eventmodel.Status(statusStr)

	levelStr, _ := obj["analytics_level"].(string)
	leaf.Level = levelStr
	ev.Level = eventmodel.AnalyticsLevel(levelStr)

	tsStr, _ := obj["timestamp_hour"].(string)
	ts, err := time.Parse(time.RFC3339, tsStr)
	if err != nil {
		rules = append(rules, "timestamp_hour must be an ISO-8601 instant")
	} else if ts.Minute() != 0 || ts.Second() != 0 || ts.Nanosecond() != 0 {
		rules = append(rules, "timestamp_hour must be rounded to the hour")
	} else {
		ev.TimestampHour = ts.UTC()
	}

	if ev.Level == eventmodel.LevelStandard || ev.Level == eventmodel.LevelDetailed {
		rules = append(rules, collectStandardFields(obj, &ev, &leaf)...)
	}
	if ev.Level == eventmodel.LevelDetailed {
		rules = append(rules, collectDetailedFields(obj, &ev, &leaf)...)
	}

	failed, leafErrs := runLeafValidation(&leaf)
	rules = append(rules, leafErrs...)
	assignLeafFields(&ev, &leaf, failed)

	if _, bad := failed["Country"]; !bad && ev.Country != nil && strings.Trim(*ev.Country, "ABCDEFGHIJKLMNOPQRSTUVWXYZ") != "" {
		rules = append(rules, "country must be exactly 2 uppercase letters")
		ev.Country = nil
	}

	if ev.Status == eventmodel.StatusError && ev.Level != eventmodel.LevelMinimal {
		if ev.ErrorType == nil || *ev.ErrorType == "" {
			rules = append(rules, "error_type is required when status=error at standard/detailed level")
		}
	}

	return ev, rules
}

// collectStandardFields pulls the standard/detailed-level leaf candidates
// out of the raw object into leaf, rejecting anything with the wrong JSON
// type outright (a type mismatch isn't something a struct tag checks).
// cache_hit and parameters have no further shape constraint beyond their
// Go type, so they're assigned straight onto ev.
func collectStandardFields(obj map[string]interface{}, ev *eventmodel.Event, leaf *eventLeaf) []string {
	var rules []string

	if raw, present := obj["response_time_ms"]; present {
		if n, ok := asInt(raw); ok {
			leaf.ResponseTimeMs = &n
		} else {
			rules = append(rules, "response_time_ms must be an integer between 0 and 120000")
		}
	}

	if raw, present := obj["service"]; present {
		if s, ok := raw.(string); ok {
			leaf.Service = &s
		} else {
			rules = append(rules, "service must be one of: noaa, openmeteo")
		}
	}

	if raw, present := obj["cache_hit"]; present {
		if b, ok := raw.(bool); ok {
			ev.CacheHit = &b
		} else {
			rules = append(rules, "cache_hit must be a boolean")
		}
	}

	if raw, present := obj["retry_count"]; present {
		if n, ok := asInt(raw); ok {
			leaf.RetryCount = &n
		} else {
			rules = append(rules, "retry_count must be an integer between 0 and 10")
		}
	}

	if raw, present := obj["country"]; present {
		if s, ok := raw.(string); ok {
			leaf.Country = &s
		} else {
			rules = append(rules, "country must be exactly 2 uppercase letters")
		}
	}

	if raw, present := obj["error_type"]; present {
		if s, ok := raw.(string); ok {
			leaf.ErrorType = &s
		} else {
			rules = append(rules, "error_type must be <= 100 characters")
		}
	}

	return rules
}

func collectDetailedFields(obj map[string]interface{}, ev *eventmodel.Event, leaf *eventLeaf) []string {
	var rules []string

	if raw, present := obj["parameters"]; present {
		if m, ok := raw.(map[string]interface{}); ok {
			ev.Parameters = m
		} else {
			rules = append(rules, "parameters must be an object")
		}
	}

	if raw, present := obj["session_id"]; present {
		if s, ok := raw.(string); ok {
			leaf.SessionID = &s
		} else {
			rules = append(rules, "session_id must be an opaque 16-character hash")
		}
	}

	if raw, present := obj["sequence_number"]; present {
		if n, ok := asInt(raw); ok {
			leaf.SequenceNumber = &n
		} else {
			rules = append(rules, "sequence_number must be a non-negative integer")
		}
	}

	return rules
}

// runLeafValidation runs the go-playground/validator struct-tag checks over
// leaf and returns the set of struct field names that failed, alongside a
// rule message per failure, so assignLeafFields knows which pointers to
// leave unset on ev.
func runLeafValidation(leaf *eventLeaf) (map[string]struct{}, []string) {
	failed := make(map[string]struct{})

	err := validate.Struct(leaf)
	if err == nil {
		return failed, nil
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return failed, []string{"internal validation error"}
	}

	rules := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		failed[fe.StructField()] = struct{}{}
		rules = append(rules, leafFieldMessage(fe))
	}
	return failed, rules
}

func leafFieldMessage(fe validator.FieldError) string {
	switch fe.StructField() {
	case "Version":
		return "version is required and must be <= 20 characters"
	case "Status":
		return "status must be one of: success, error"
	case "Level":
		return "analytics_level must be one of: minimal, standard, detailed"
	case "ResponseTimeMs":
		return "response_time_ms must be an integer between 0 and 120000"
	case "Service":
		return "service must be one of: noaa, openmeteo"
	case "RetryCount":
		return "retry_count must be an integer between 0 and 10"
	case "Country":
		return "country must be exactly 2 uppercase letters"
	case "ErrorType":
		return "error_type must be <= 100 characters"
	case "SessionID":
		return "session_id must be an opaque 16-character hash"
	case "SequenceNumber":
		return "sequence_number must be a non-negative integer"
	default:
		return fmt.Sprintf("%s failed validation", fe.StructField())
	}
}

// assignLeafFields copies every leaf field that passed validation onto ev.
// Fields that failed are left nil on ev, same as the old hand-rolled
// validate-then-assign did.
func assignLeafFields(ev *eventmodel.Event, leaf *eventLeaf, failed map[string]struct{}) {
	if _, bad := failed["ResponseTimeMs"]; !bad {
		ev.ResponseTimeMs = leaf.ResponseTimeMs
	}
	if _, bad := failed["Service"]; !bad && leaf.Service != nil {
		svc := eventmodel.Service(*leaf.Service)
		ev.Service = &svc
	}
	if _, bad := failed["RetryCount"]; !bad {
		ev.RetryCount = leaf.RetryCount
	}
	if _, bad := failed["Country"]; !bad {
		ev.Country = leaf.Country
	}
	if _, bad := failed["ErrorType"]; !bad {
		ev.ErrorType = leaf.ErrorType
	}
	if _, bad := failed["SessionID"]; !bad {
		ev.SessionID = leaf.SessionID
	}
	if _, bad := failed["SequenceNumber"]; !bad {
		ev.SequenceNumber = leaf.SequenceNumber
	}
}

func asInt(raw interface{}) (int, bool) {
	switch v := raw.(type) {
	case float64:
		if v != float64(int(v)) {
			return 0, false
		}
		return int(v), true
	case int:
		return v, true
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}
