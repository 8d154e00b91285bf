package s3

import "testing"

func TestParseURL(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		wantBucket string
		wantKey    string
		wantErr    bool
	}{
		{
			name:       "bucket and key",
			input:      "s3://artifacts/bundles/win64-satsuki/abc",
			wantBucket: "artifacts",
			wantKey:    "bundles/win64-satsuki/abc",
		},
		{
			name:    "missing scheme",
			input:   "artifacts/key",
			wantErr: true,
		},
		{
			name:    "missing key",
			input:   "s3://artifacts",
			wantErr: true,
		},
		{
			name:    "empty bucket",
			input:   "s3:///key",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bucket, key, err := ParseURL(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseURL() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if bucket != tt.wantBucket || key != tt.wantKey {
				t.Fatalf("ParseURL() = %q, %q, want %q, %q", bucket, key, tt.wantBucket, tt.wantKey)
			}
		})
	}
}

func TestEncodeSHA256(t *testing.T) {
	if _, err := encodeSHA256(""); err == nil {
		t.Fatal("expected error for empty digest")
	}
	if _, err := encodeSHA256("zz"); err == nil {
		t.Fatal("expected error for non-hex digest")
	}
	got, err := encodeSHA256("00ff")
	if err != nil {
		t.Fatalf("encodeSHA256() error = %v", err)
	}
	if got != "AP8=" {
		t.Fatalf("encodeSHA256() = %q, want %q", got, "AP8=")
	}
}
