package fhir

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestNewOperationOutcome(t *testing.T) {
	oo := NewOperationOutcome(IssueSeverityError, IssueTypeStructure, "records[0]: payload must be an object")
	if oo.ResourceType != "OperationOutcome" {
		t.Errorf("unexpected resourceType %q", oo.ResourceType)
	}
	if len(oo.Issue) != 1 || oo.Issue[0].Code != IssueTypeStructure {
		t.Fatalf("unexpected issues %+v", oo.Issue)
	}
	if !oo.HasErrors() {
		t.Error("expected HasErrors for an error issue")
	}
}

func TestOperationOutcome_AddIssueAndHasErrors(t *testing.T) {
	oo := NewOperationOutcome(IssueSeverityWarning, IssueTypeProcessing, "dropped record")
	if oo.HasErrors() {
		t.Error("warnings alone are not errors")
	}
	oo.AddIssue(IssueSeverityFatal, IssueTypeTransient, "storage unavailable", "Batch")
	if !oo.HasErrors() {
		t.Error("expected HasErrors after a fatal issue")
	}
	if got := oo.Issue[1].Expression; len(got) != 1 || got[0] != "Batch" {
		t.Errorf("unexpected expression %v", got)
	}
}

func TestOutcomeHelpers(t *testing.T) {
	if oo := ErrorOutcome("boom"); oo.Issue[0].Code != IssueTypeProcessing || oo.Issue[0].Diagnostics != "boom" {
		t.Errorf("unexpected error outcome %+v", oo.Issue[0])
	}
	oo := NotFoundOutcome("Patient", "p1")
	if oo.Issue[0].Code != IssueTypeNotFound || !strings.Contains(oo.Issue[0].Diagnostics, "Patient/p1") {
		t.Errorf("unexpected not-found outcome %+v", oo.Issue[0])
	}
}

func TestOperationOutcome_JSON(t *testing.T) {
	data, err := json.Marshal(NewOperationOutcome(IssueSeverityError, IssueTypeInvalid, "bad"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"resourceType":"OperationOutcome","issue":[{"severity":"error","code":"invalid","diagnostics":"bad"}]}`
	if string(data) != want {
		t.Errorf("got %s, want %s", data, want)
	}
}
