// Livewall - Real-Time Social Wall with Moderated Ingestion
// Copyright 2026 A. Warren (awarren)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/awarren/livewall

package validation

import (
	"strings"
	"testing"

	"github.com/awarren/livewall/internal/models"
)

func TestValidateSettingsPatch(t *testing.T) {
	tests := []struct {
		name       string
		hashtags   []string
		publishers []string
		wantValid  bool
	}{
		{
			name:      "plain hashtags",
			hashtags:  []string{"#golang", "gophercon"},
			wantValid: true,
		},
		{
			name:       "handles without whitespace",
			publishers: []string{"gnat", "the_org"},
			wantValid:  true,
		},
		{
			name:      "hashtag with comma",
			hashtags:  []string{"#go,#rust"},
			wantValid: false,
		},
		{
			name:      "hashtag with spaces",
			hashtags:  []string{"go lang"},
			wantValid: false,
		},
		{
			name:      "empty hashtag",
			hashtags:  []string{""},
			wantValid: false,
		},
		{
			name:      "bare hash",
			hashtags:  []string{"#"},
			wantValid: false,
		},
		{
			name:      "empty hashtag list",
			hashtags:  []string{},
			wantValid: false,
		},
		{
			name:       "handle with newline",
			publishers: []string{"gnat\n"},
			wantValid:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			patch := models.SettingsPatch{}
			if tt.hashtags != nil {
				patch.Hashtags = &tt.hashtags
			}
			if tt.publishers != nil {
				patch.Publishers = &tt.publishers
			}

			err := ValidateStruct(&patch)
			if tt.wantValid && err != nil {
				t.Errorf("expected valid, got: %v", err)
			}
			if !tt.wantValid && err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestEmptyPatchIsValid(t *testing.T) {
	if err := ValidateStruct(&models.SettingsPatch{}); err != nil {
		t.Errorf("nil fields must pass validation, got: %v", err)
	}
}

func TestErrorTranslation(t *testing.T) {
	hashtags := []string{"bad tag"}
	err := ValidateStruct(&models.SettingsPatch{Hashtags: &hashtags})
	if err == nil {
		t.Fatal("expected validation error")
	}

	if len(err.Errors()) != 1 {
		t.Fatalf("expected 1 error, got %d", len(err.Errors()))
	}

	fieldErr := err.Errors()[0]
	if fieldErr.Tag() != "hashtag" {
		t.Errorf("expected hashtag tag, got %q", fieldErr.Tag())
	}
	if !strings.Contains(err.Error(), "hashtag") {
		t.Errorf("message should name the failed rule: %q", err.Error())
	}
}

func TestGetValidatorIsSingleton(t *testing.T) {
	if GetValidator() != GetValidator() {
		t.Error("expected the same validator instance on repeat calls")
	}
}
