// Package evaluate turns the raw results of a validation task into a pass/fail verdict.
package evaluate

import (
	"encoding/json"

	"github.com/slok/valtask/internal/model"
)

// countResult is the result shape of the validations that report invalid items.
type countResult struct {
	Total int `json:"total"`
}

type testTakersResult struct {
	TestTakersFound bool              `json:"testTakersFound"`
	MissingPersons  []json.RawMessage `json:"missingPersons"`
}

type groupResponsesResult struct {
	TestTakersFound        bool `json:"testTakersFound"`
	AllGroupsHaveResponses bool `json:"allGroupsHaveResponses"`
}

// Evaluate returns the verdict for a raw validation result.
//
// Payloads that can't be decoded are evaluated as failed. Types without rules
// (remediation tasks and unknown types) pass through as success.
func Evaluate(vt model.ValidationType, raw model.RawResult) model.ResultStatus {
	switch vt {
	case model.ValidationTypeVariables,
		model.ValidationTypeVariableTypes,
		model.ValidationTypeResponseStatus,
		model.ValidationTypeDuplicateResponses:
		var r countResult
		if !decode(raw, &r) {
			return model.ResultStatusFailed
		}
		return verdict(r.Total <= 0)

	case model.ValidationTypeTestTakers:
		var r testTakersResult
		if !decode(raw, &r) {
			return model.ResultStatusFailed
		}
		return verdict(r.TestTakersFound && len(r.MissingPersons) == 0)

	case model.ValidationTypeGroupResponses:
		var r groupResponsesResult
		if !decode(raw, &r) {
			return model.ResultStatusFailed
		}
		return verdict(r.TestTakersFound && r.AllGroupsHaveResponses)
	}

	return model.ResultStatusSuccess
}

func decode(raw model.RawResult, v any) bool {
	if len(raw) == 0 {
		return true
	}
	return json.Unmarshal(raw, v) == nil
}

func verdict(ok bool) model.ResultStatus {
	if ok {
		return model.ResultStatusSuccess
	}
	return model.ResultStatusFailed
}
