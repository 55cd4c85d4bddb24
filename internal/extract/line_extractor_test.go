package extract

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLineExtractor_Extract(t *testing.T) {
	e := NewLineExtractor()
	ctx := context.Background()

	t.Run("pipe delimited", func(t *testing.T) {
		data := []byte("01/03/2024 | STRIPE PAYMENT | -50.00\n02/03/2024 | UNKNOWN VENDOR | -10.00\n")

		rows, err := e.Extract(ctx, data)
		require.NoError(t, err)
		require.Len(t, rows, 2)

		assert.Equal(t, "STRIPE PAYMENT", rows[0].Description)
		assert.Equal(t, "-50", rows[0].Amount.String())
		assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), rows[0].TxnDate)
		assert.Equal(t, "UNKNOWN VENDOR", rows[1].Description)
	})

	t.Run("whitespace delimited", func(t *testing.T) {
		rows, err := e.Extract(ctx, []byte("2024-03-01 SALARY CREDIT 5,000.00\n"))
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "SALARY CREDIT", rows[0].Description)
		assert.Equal(t, "5000", rows[0].Amount.String())
	})

	t.Run("currency prefix stripped", func(t *testing.T) {
		rows, err := e.Extract(ctx, []byte("01/03/2024 | PETRONAS STATION | RM45.90\n"))
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "45.9", rows[0].Amount.String())
	})

	t.Run("unparseable date keeps row with zero date", func(t *testing.T) {
		rows, err := e.Extract(ctx, []byte("pending | CARD HOLD | -9.99\n"))
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.True(t, rows[0].TxnDate.IsZero())
	})

	t.Run("unparseable lines skipped", func(t *testing.T) {
		data := []byte("STATEMENT OF ACCOUNT\n\n01/03/2024 | STRIPE PAYMENT | -50.00\nBALANCE CARRIED FORWARD\n")
		rows, err := e.Extract(ctx, data)
		require.NoError(t, err)
		require.Len(t, rows, 1)
	})

	t.Run("no parseable rows is valid and empty", func(t *testing.T) {
		rows, err := e.Extract(ctx, []byte("just some prose\nwith no amounts\n"))
		require.NoError(t, err)
		assert.Empty(t, rows)
	})
}

func TestLineExtractor_ExtractErrors(t *testing.T) {
	e := NewLineExtractor()
	ctx := context.Background()

	tests := []struct {
		name    string
		data    []byte
		wantErr error
	}{
		{name: "empty file", data: nil, wantErr: ErrUnreadable},
		{name: "whitespace only", data: []byte("   \n\t\n"), wantErr: ErrUnreadable},
		{name: "binary garbage", data: []byte{0xff, 0xfe, 0x00, 0x01}, wantErr: ErrUnreadable},
		{name: "raw pdf bytes", data: []byte("%PDF-1.7\nbinary stream here"), wantErr: ErrUnsupported},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Extract(ctx, tt.data)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestLineExtractor_ExtractHonorsContext(t *testing.T) {
	e := NewLineExtractor()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Extract(ctx, []byte("01/03/2024 | STRIPE PAYMENT | -50.00\n"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{input: "-50.00", want: "-50"},
		{input: "1,234.56", want: "1234.56"},
		{input: "RM 45.90", want: "45.9"},
		{input: "RM45.90", want: "45.9"},
		{input: "abc", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseAmount(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}
