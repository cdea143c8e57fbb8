package dedup

import "testing"

func TestNormalizeJobURL(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{
			name:  "strips query string",
			input: "https://example.com/jobs/123?utm_source=feed&ref=abc",
			want:  "https://example.com/jobs/123",
		},
		{
			name:  "strips fragment",
			input: "https://example.com/jobs/123#apply",
			want:  "https://example.com/jobs/123",
		},
		{
			name:  "strips trailing slash",
			input: "https://example.com/jobs/123/",
			want:  "https://example.com/jobs/123",
		},
		{
			name:  "lowercases",
			input: "https://Example.COM/Jobs/Senior-Engineer",
			want:  "https://example.com/jobs/senior-engineer",
		},
		{
			name:  "tracking params never affect identity",
			input: "https://example.com/jobs/123/?utm_campaign=x#top",
			want:  "https://example.com/jobs/123",
		},
		{
			name:  "already normalized is unchanged",
			input: "https://example.com/jobs/123",
			want:  "https://example.com/jobs/123",
		},
		{
			name:    "empty input",
			input:   "",
			wantErr: true,
		},
		{
			name:    "missing scheme",
			input:   "example.com/jobs/123",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeJobURL(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NormalizeJobURL(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("NormalizeJobURL(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNormalizeJobURLDeterministic(t *testing.T) {
	variants := []string{
		"https://example.com/jobs/123",
		"https://example.com/jobs/123/",
		"https://EXAMPLE.com/jobs/123?source=rss",
		"https://example.com/jobs/123#details",
	}

	first, err := NormalizeJobURL(variants[0])
	if err != nil {
		t.Fatalf("NormalizeJobURL() error = %v", err)
	}
	for _, v := range variants[1:] {
		got, normErr := NormalizeJobURL(v)
		if normErr != nil {
			t.Fatalf("NormalizeJobURL(%q) error = %v", v, normErr)
		}
		if got != first {
			t.Errorf("NormalizeJobURL(%q) = %q, want %q", v, got, first)
		}
	}
}

func TestFingerprint(t *testing.T) {
	base := Fingerprint("Acme Corp", "Senior Engineer", "Berlin")

	tests := []struct {
		name     string
		company  string
		title    string
		location string
		same     bool
	}{
		{"identical input", "Acme Corp", "Senior Engineer", "Berlin", true},
		{"case differences", "ACME CORP", "senior engineer", "BERLIN", true},
		{"surrounding whitespace", "  Acme Corp  ", "Senior Engineer", " Berlin ", true},
		{"internal whitespace runs", "Acme   Corp", "Senior\tEngineer", "Berlin", true},
		{"different title", "Acme Corp", "Junior Engineer", "Berlin", false},
		{"different company", "Other Corp", "Senior Engineer", "Berlin", false},
		{"different location", "Acme Corp", "Senior Engineer", "Munich", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Fingerprint(tt.company, tt.title, tt.location)
			if (got == base) != tt.same {
				t.Errorf("Fingerprint(%q, %q, %q) = %q, base %q, want same=%v",
					tt.company, tt.title, tt.location, got, base, tt.same)
			}
		})
	}
}

func TestFingerprintFieldOrderMatters(t *testing.T) {
	// Swapping field values must not collide thanks to the separator.
	a := Fingerprint("alpha", "beta", "gamma")
	b := Fingerprint("beta", "alpha", "gamma")
	if a == b {
		t.Errorf("swapped fields collided: %q", a)
	}
}
