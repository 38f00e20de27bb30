package receipts

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/wealth-tracker/internal/domain"
)

// fakeInvoker returns a canned model reply.
type fakeInvoker struct {
	reply string
	err   error

	gotPrompt   string
	gotMimeType string
}

func (f *fakeInvoker) GenerateContent(ctx context.Context, prompt string, image []byte, mimeType string) (string, error) {
	f.gotPrompt = prompt
	f.gotMimeType = mimeType
	return f.reply, f.err
}

func newScanner(t *testing.T, invoker ModelInvoker) *Scanner {
	t.Helper()
	mapping, err := LoadCategoryMapping()
	if err != nil {
		t.Fatalf("LoadCategoryMapping() error = %v", err)
	}
	return NewScanner(invoker, mapping, zerolog.Nop())
}

func TestScan(t *testing.T) {
	tests := []struct {
		name         string
		reply        string
		wantCategory string
	}{
		{
			name:         "plain json",
			reply:        `{"amount": 25.99, "date": "2023-10-15T00:00:00Z", "description": "Coffee and pastry", "merchantName": "Starbucks", "category": "food"}`,
			wantCategory: "food",
		},
		{
			name: "fenced json",
			reply: "```json\n" +
				`{"amount": 25.99, "date": "2023-10-15T00:00:00Z", "description": "Coffee and pastry", "merchantName": "Starbucks", "category": "food"}` +
				"\n```",
			wantCategory: "food",
		},
		{
			name:         "label mapped to id",
			reply:        `{"amount": 12.00, "date": "2023-10-15", "description": "Haircut", "merchantName": "Cuts", "category": "Personal Care"}`,
			wantCategory: "personal",
		},
		{
			name:         "unknown category passes through",
			reply:        `{"amount": 12.00, "date": "2023-10-15", "description": "Mystery", "merchantName": "Shop", "category": "cryptocurrency"}`,
			wantCategory: "cryptocurrency",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			invoker := &fakeInvoker{reply: tt.reply}
			s := newScanner(t, invoker)

			data, err := s.Scan(context.Background(), []byte("img"), "image/jpeg")
			if err != nil {
				t.Fatalf("Scan() error = %v", err)
			}
			if data.Category != tt.wantCategory {
				t.Errorf("category = %q, want %q", data.Category, tt.wantCategory)
			}
			if data.Amount.IsZero() {
				t.Error("expected a non-zero amount")
			}
			if data.Date.IsZero() {
				t.Error("expected a parsed date")
			}
			if invoker.gotMimeType != "image/jpeg" {
				t.Errorf("mime type passed to model = %q", invoker.gotMimeType)
			}
		})
	}
}

func TestScan_ParsesRFC3339WithMillis(t *testing.T) {
	invoker := &fakeInvoker{
		reply: `{"amount": 9.50, "date": "2023-10-15T00:00:00.000Z", "description": "x", "merchantName": "y", "category": "food"}`,
	}
	s := newScanner(t, invoker)

	data, err := s.Scan(context.Background(), []byte("img"), "image/png")
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	want := time.Date(2023, time.October, 15, 0, 0, 0, 0, time.UTC)
	if !data.Date.Equal(want) {
		t.Errorf("date = %v, want %v", data.Date, want)
	}
	if !data.Amount.Equal(decimal.NewFromFloat(9.50)) {
		t.Errorf("amount = %s, want 9.5", data.Amount)
	}
}

func TestScan_Failures(t *testing.T) {
	tests := []struct {
		name    string
		invoker *fakeInvoker
		image   []byte
		mime    string
		wantErr error
	}{
		{
			name:    "model error",
			invoker: &fakeInvoker{err: errors.New("quota exceeded")},
			image:   []byte("img"),
			mime:    "image/jpeg",
			wantErr: domain.ErrExternalService,
		},
		{
			name:    "unparseable reply",
			invoker: &fakeInvoker{reply: "I could not read this receipt, sorry!"},
			image:   []byte("img"),
			mime:    "image/jpeg",
			wantErr: domain.ErrExternalService,
		},
		{
			name:    "empty object means not a receipt",
			invoker: &fakeInvoker{reply: "{}"},
			image:   []byte("img"),
			mime:    "image/jpeg",
			wantErr: domain.ErrExternalService,
		},
		{
			name:    "empty image",
			invoker: &fakeInvoker{reply: "{}"},
			image:   nil,
			mime:    "image/jpeg",
			wantErr: domain.ErrValidation,
		},
		{
			name:    "non-image content type",
			invoker: &fakeInvoker{reply: "{}"},
			image:   []byte("img"),
			mime:    "application/pdf",
			wantErr: domain.ErrValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newScanner(t, tt.invoker)
			_, err := s.Scan(context.Background(), tt.image, tt.mime)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Scan() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestCleanModelJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare object", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"plain fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"leading prose", "Here you go:\n{\"a\":1}", `{"a":1}`},
		{"trailing prose", "{\"a\":1}\nHope that helps!", `{"a":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cleanModelJSON(tt.in); got != tt.want {
				t.Errorf("cleanModelJSON(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
