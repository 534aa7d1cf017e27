package logging

import "testing"

func TestToFieldsPairsKeysAndValues(t *testing.T) {
	fields := toFields([]interface{}{"jobId", "abc", "slides", 3, "dangling"})

	if len(fields) != 2 {
		t.Fatalf("expected 2 fields, got %d: %v", len(fields), fields)
	}
	if fields["jobId"] != "abc" {
		t.Errorf("jobId = %v, want abc", fields["jobId"])
	}
	if fields["slides"] != 3 {
		t.Errorf("slides = %v, want 3", fields["slides"])
	}
}

func TestConfigure(t *testing.T) {
	defer func() { _ = Configure("info", "text") }()

	tests := []struct {
		level   string
		format  string
		wantErr bool
	}{
		{"debug", "json", false},
		{"warn", "text", false},
		{"info", "", false},
		{"loud", "text", true},
		{"info", "xml", true},
	}

	for _, tc := range tests {
		t.Run(tc.level+"/"+tc.format, func(t *testing.T) {
			err := Configure(tc.level, tc.format)
			if (err != nil) != tc.wantErr {
				t.Errorf("Configure(%q, %q) error = %v, wantErr %v", tc.level, tc.format, err, tc.wantErr)
			}
		})
	}
}

func TestWithKeepsPrefix(t *testing.T) {
	l := NewLogger("Processor").With("jobId", "j-1")
	if l.prefix != "Processor" {
		t.Errorf("prefix = %q, want Processor", l.prefix)
	}
	if l.entry.Data["jobId"] != "j-1" {
		t.Errorf("jobId field missing from child logger: %v", l.entry.Data)
	}
	if l.entry.Data["component"] != "Processor" {
		t.Errorf("component field missing from child logger: %v", l.entry.Data)
	}
}
