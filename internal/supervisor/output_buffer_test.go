package supervisor

import (
	"testing"
)

func TestLimitedBuffer_Write(t *testing.T) {
	tests := []struct {
		name      string
		limit     int
		writes    []string
		want      string
		wantTrunc bool
	}{
		{
			name:      "No truncation",
			limit:     10,
			writes:    []string{"hello", "world"},
			want:      "helloworld",
			wantTrunc: false,
		},
		{
			name:      "Exact limit",
			limit:     11,
			writes:    []string{"hello", "world!"},
			want:      "helloworld!",
			wantTrunc: false,
		},
		{
			name:      "Truncation in single write",
			limit:     5,
			writes:    []string{"helloworld"},
			want:      "hello\n... output truncated ...",
			wantTrunc: true,
		},
		{
			name:      "Truncation in second write",
			limit:     10,
			writes:    []string{"hello", " world! this is long"},
			want:      "hello worl\n... output truncated ...",
			wantTrunc: true,
		},
		{
			name:      "Writes after truncation are ignored",
			limit:     5,
			writes:    []string{"hello", "world", "ignored"},
			want:      "hello\n... output truncated ...",
			wantTrunc: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lb := newLimitedBuffer(tt.limit)
			for _, w := range tt.writes {
				n, err := lb.Write([]byte(w))
				if err != nil {
					t.Errorf("Write() error = %v", err)
				}
				if n != len(w) {
					t.Errorf("Write() returned %v, want %v", n, len(w))
				}
			}

			if lb.truncated != tt.wantTrunc {
				t.Errorf("truncated = %v, want %v", lb.truncated, tt.wantTrunc)
			}

			if got := lb.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLimitedBuffer_DefaultLimit(t *testing.T) {
	lb := newLimitedBuffer(0)
	if lb.limit != defaultMaxOutputSize {
		t.Errorf("limit = %d, want %d", lb.limit, defaultMaxOutputSize)
	}
}

func TestLimitedBuffer_MarkerOnlyInString(t *testing.T) {
	lb := newLimitedBuffer(4)
	lb.Write([]byte("ab"))
	if lb.truncated {
		t.Fatal("truncated before limit was reached")
	}
	lb.Write([]byte("cdef"))
	lb.Write([]byte("gh"))

	if !lb.truncated {
		t.Error("truncated = false after overflow")
	}
	if got := string(lb.Bytes()); got != "abcd" {
		t.Errorf("Bytes() = %q, want %q", got, "abcd")
	}
	if got := lb.String(); got != "abcd"+truncationMarker {
		t.Errorf("String() = %q, want %q", got, "abcd"+truncationMarker)
	}
}

func TestLimitedBuffer_EmptyWriteAtLimit(t *testing.T) {
	lb := newLimitedBuffer(2)
	lb.Write([]byte("xy"))
	lb.Write(nil)
	if lb.truncated {
		t.Error("empty write at the limit marked the buffer truncated")
	}
	if got := lb.String(); got != "xy" {
		t.Errorf("String() = %q, want %q", got, "xy")
	}
}
