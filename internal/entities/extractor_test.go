package entities

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/mongopulse/anomaly-engine/internal/models"
)

type fakeCapability struct {
	groups map[string][]string
	err    error
	calls  int
	lastIn string
}

func (f *fakeCapability) Annotate(_ context.Context, text string) (map[string][]string, error) {
	f.calls++
	f.lastIn = text
	return f.groups, f.err
}

func TestExtractIPsDeduplicated(t *testing.T) {
	extractor := NewExtractor(nil, nil)
	record := models.LogRecord{
		"msg":    "connection refused from 10.0.0.5:443 and 10.0.0.5:443",
		"remote": "192.168.1.20",
	}

	result := extractor.Extract(context.Background(), record)

	want := []string{"10.0.0.5:443", "192.168.1.20"}
	if !reflect.DeepEqual(result.IPs, want) {
		t.Fatalf("IPs = %v, want %v", result.IPs, want)
	}
}

func TestClassifyOrderIsLoadBearing(t *testing.T) {
	// A message matching both the Authentication and ConnectionRefused
	// rules must classify as Authentication: rule 1 precedes rule 2.
	got, ok := Classify("auth refused", "auth refused")
	if !ok || got != ErrorTypeAuthentication {
		t.Fatalf("Classify = %q (%t), want %q", got, ok, ErrorTypeAuthentication)
	}
}

func TestClassifyCategories(t *testing.T) {
	cases := []struct {
		msg  string
		blob string
		want string
	}{
		{"authentication failed", "authentication failed", ErrorTypeAuthentication},
		{"failed", "failed for principal user_1", ErrorTypeAuthentication},
		{"connection refused", "connection refused", ErrorTypeConnectionRefused},
		{"slow query", "slow query", ErrorTypeSlowQuery},
		{"index build failed", "index build failed idx_users_1", ErrorTypeIndexBuildFailure},
		{"operation exceeded limit", "operation exceeded limit timeout", ErrorTypeTimeout},
		{"SLOW QUERY", "SLOW QUERY", ErrorTypeSlowQuery}, // case-insensitive
	}
	for _, tc := range cases {
		got, ok := Classify(tc.msg, tc.blob)
		if !ok || got != tc.want {
			t.Errorf("Classify(%q) = %q (%t), want %q", tc.msg, got, ok, tc.want)
		}
	}
}

func TestClassifyNoMatch(t *testing.T) {
	if got, ok := Classify("connection accepted", "connection accepted"); ok {
		t.Fatalf("expected no category, got %q", got)
	}

	extractor := NewExtractor(nil, nil)
	result := extractor.Extract(context.Background(), models.LogRecord{"msg": "connection accepted"})
	if result.ErrorType != nil {
		t.Fatalf("error_type = %q, want nil", *result.ErrorType)
	}
}

func TestExtractBlobCoversWholeRecord(t *testing.T) {
	extractor := NewExtractor(nil, nil)
	// "principal" only appears in a non-message field; the blob must still
	// surface it for rule 1.
	record := models.LogRecord{
		"msg":           "failed",
		"principalName": "user_7@example.com",
	}

	result := extractor.Extract(context.Background(), record)
	if result.ErrorType == nil || *result.ErrorType != ErrorTypeAuthentication {
		t.Fatalf("error_type = %v, want Authentication", result.ErrorType)
	}
}

func TestExtractWithCapability(t *testing.T) {
	ner := &fakeCapability{groups: map[string][]string{
		"ORG":    {"MongoDB", "MongoDB", "Atlas"},
		"PERSON": {"user_1"},
	}}
	extractor := NewExtractor(ner, nil)

	result := extractor.Extract(context.Background(), models.LogRecord{"msg": "connection accepted"})

	if ner.calls != 1 {
		t.Fatalf("capability invoked %d times, want 1", ner.calls)
	}
	if want := []string{"MongoDB", "Atlas"}; !reflect.DeepEqual(result.Entities["ORG"], want) {
		t.Errorf("ORG entities = %v, want %v (deduplicated, first-seen order)", result.Entities["ORG"], want)
	}
	if want := []string{"user_1"}; !reflect.DeepEqual(result.Entities["PERSON"], want) {
		t.Errorf("PERSON entities = %v, want %v", result.Entities["PERSON"], want)
	}
}

func TestExtractDegradesWithoutCapability(t *testing.T) {
	failing := &fakeCapability{err: errors.New("service down")}

	for name, extractor := range map[string]*Extractor{
		"unavailable": NewExtractor(nil, nil),
		"failing":     NewExtractor(failing, nil),
	} {
		result := extractor.Extract(context.Background(), models.LogRecord{
			"msg": "authentication failed from 10.1.1.1",
		})

		if len(result.Entities) != 0 {
			t.Errorf("%s: entities = %v, want empty", name, result.Entities)
		}
		if result.Entities == nil {
			t.Errorf("%s: entities map must be empty, not nil", name)
		}
		if len(result.IPs) != 1 {
			t.Errorf("%s: IPs = %v, regex extraction should still run", name, result.IPs)
		}
		if result.ErrorType == nil || *result.ErrorType != ErrorTypeAuthentication {
			t.Errorf("%s: error_type = %v, heuristics should still run", name, result.ErrorType)
		}
	}
}
