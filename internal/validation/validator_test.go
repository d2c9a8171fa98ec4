// Scentmatch - Hybrid Fragrance Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scentmatch

package validation

import (
	"strings"
	"testing"
)

type feedbackRequest struct {
	UserID string   `json:"user_id" validate:"required,max=128"`
	ItemID string   `json:"item_id" validate:"required"`
	Type   string   `json:"type" validate:"required,interaction_type"`
	Rating float64  `json:"rating" validate:"omitempty,gte=1,lte=5"`
	Season string   `json:"season,omitempty" validate:"omitempty,season"`
	Tags   []string `json:"tags,omitempty" validate:"max=2"`
}

func TestGetValidator_Singleton(t *testing.T) {
	t.Parallel()

	if GetValidator() != GetValidator() {
		t.Error("GetValidator() returned different instances")
	}
}

func TestValidateStruct(t *testing.T) {
	t.Parallel()

	valid := feedbackRequest{UserID: "u1", ItemID: "i1", Type: "rate", Rating: 4, Season: "Fall"}

	tests := []struct {
		name      string
		modify    func(*feedbackRequest)
		wantField string
		wantText  string
	}{
		{"valid", func(*feedbackRequest) {}, "", ""},
		{"missing user", func(r *feedbackRequest) { r.UserID = "" }, "user_id", "user_id is required"},
		{"unknown type", func(r *feedbackRequest) { r.Type = "like" }, "type", "must be one of view"},
		{"rating too high", func(r *feedbackRequest) { r.Rating = 6 }, "rating", "less than or equal to 5"},
		{"bad season", func(r *feedbackRequest) { r.Season = "monsoon" }, "season", "must be a season"},
		{"too many tags", func(r *feedbackRequest) { r.Tags = []string{"a", "b", "c"} }, "tags", "at most 2 entries"},
		{"user too long", func(r *feedbackRequest) { r.UserID = strings.Repeat("x", 129) }, "user_id", "at most 128 characters"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req := valid
			tt.modify(&req)
			verr := ValidateStruct(&req)

			if tt.wantField == "" {
				if verr != nil {
					t.Fatalf("ValidateStruct() = %v, want nil", verr)
				}
				return
			}
			if verr == nil {
				t.Fatal("ValidateStruct() = nil, want error")
			}
			if len(verr.Fields) != 1 || verr.Fields[0].Field != tt.wantField {
				t.Fatalf("Fields = %+v, want one error on %s", verr.Fields, tt.wantField)
			}
			if !strings.Contains(verr.Error(), tt.wantText) {
				t.Errorf("Error() = %q, want it to contain %q", verr.Error(), tt.wantText)
			}
		})
	}
}

func TestRequestValidationError_Details(t *testing.T) {
	t.Parallel()

	verr := ValidateStruct(&feedbackRequest{})
	if verr == nil || len(verr.Fields) != 3 {
		t.Fatalf("ValidateStruct(empty) = %+v, want three failures", verr)
	}
	fields, ok := verr.Details()["fields"].([]FieldError)
	if !ok || len(fields) != 3 {
		t.Errorf("Details() = %+v", verr.Details())
	}
	if !strings.Contains(verr.Error(), "; ") {
		t.Errorf("Error() = %q, want joined messages", verr.Error())
	}
}
