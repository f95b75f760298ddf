package evaluate_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/slok/valtask/internal/evaluate"
	"github.com/slok/valtask/internal/model"
)

func TestEvaluate(t *testing.T) {
	tests := map[string]struct {
		vt  model.ValidationType
		raw string
		exp model.ResultStatus
	}{
		"Variables without invalid items should succeed.": {
			vt:  model.ValidationTypeVariables,
			raw: `{"total":0,"data":[]}`,
			exp: model.ResultStatusSuccess,
		},
		"Variables with invalid items should fail.": {
			vt:  model.ValidationTypeVariables,
			raw: `{"total":3,"data":[{},{},{}]}`,
			exp: model.ResultStatusFailed,
		},
		"Variable types with invalid items should fail.": {
			vt:  model.ValidationTypeVariableTypes,
			raw: `{"total":1}`,
			exp: model.ResultStatusFailed,
		},
		"Response status without invalid items should succeed.": {
			vt:  model.ValidationTypeResponseStatus,
			raw: `{"total":0}`,
			exp: model.ResultStatusSuccess,
		},
		"Duplicate responses with duplicates should fail.": {
			vt:  model.ValidationTypeDuplicateResponses,
			raw: `{"total":12,"page":1,"limit":10}`,
			exp: model.ResultStatusFailed,
		},
		"Count results without total should succeed.": {
			vt:  model.ValidationTypeDuplicateResponses,
			raw: `{}`,
			exp: model.ResultStatusSuccess,
		},
		"Test takers not found should fail.": {
			vt:  model.ValidationTypeTestTakers,
			raw: `{"testTakersFound":false,"missingPersons":[]}`,
			exp: model.ResultStatusFailed,
		},
		"Test takers with missing persons should fail.": {
			vt:  model.ValidationTypeTestTakers,
			raw: `{"testTakersFound":true,"missingPersons":[{"group":"a","login":"b","code":"c"}]}`,
			exp: model.ResultStatusFailed,
		},
		"Test takers found without missing persons should succeed.": {
			vt:  model.ValidationTypeTestTakers,
			raw: `{"testTakersFound":true,"missingPersons":[]}`,
			exp: model.ResultStatusSuccess,
		},
		"Group responses complete should succeed.": {
			vt:  model.ValidationTypeGroupResponses,
			raw: `{"testTakersFound":true,"allGroupsHaveResponses":true}`,
			exp: model.ResultStatusSuccess,
		},
		"Group responses with missing group responses should fail.": {
			vt:  model.ValidationTypeGroupResponses,
			raw: `{"testTakersFound":true,"allGroupsHaveResponses":false}`,
			exp: model.ResultStatusFailed,
		},
		"Group responses without test takers should fail.": {
			vt:  model.ValidationTypeGroupResponses,
			raw: `{"testTakersFound":false,"allGroupsHaveResponses":true}`,
			exp: model.ResultStatusFailed,
		},
		"Malformed payloads should fail.": {
			vt:  model.ValidationTypeVariables,
			raw: `{"total":`,
			exp: model.ResultStatusFailed,
		},
		"Remediation types should pass through.": {
			vt:  model.ValidationTypeDeleteResponses,
			raw: `{"deletedCount":4}`,
			exp: model.ResultStatusSuccess,
		},
		"Unknown types should pass through.": {
			vt:  "somethingElse",
			raw: `{"total":10}`,
			exp: model.ResultStatusSuccess,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			got := evaluate.Evaluate(test.vt, model.RawResult(test.raw))
			assert.Equal(t, test.exp, got)
		})
	}
}
