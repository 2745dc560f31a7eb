package pagination_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"seriesbell/internal/common/pagination"
)

func TestLoadFromEnv(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		t.Setenv("PAGINATION_DEFAULT_LIMIT", "")
		t.Setenv("PAGINATION_MAX_LIMIT", "")
		if got := pagination.LoadFromEnv(); got != pagination.DefaultConfig() {
			t.Errorf("LoadFromEnv() = %+v, want %+v", got, pagination.DefaultConfig())
		}
	})

	t.Run("overrides", func(t *testing.T) {
		t.Setenv("PAGINATION_DEFAULT_LIMIT", "5")
		t.Setenv("PAGINATION_MAX_LIMIT", "15")
		got := pagination.LoadFromEnv()
		if got.DefaultLimit != 5 || got.MaxLimit != 15 || got.DefaultPage != 1 {
			t.Errorf("LoadFromEnv() = %+v", got)
		}
	})

	t.Run("malformed values keep defaults", func(t *testing.T) {
		t.Setenv("PAGINATION_DEFAULT_LIMIT", "ten")
		t.Setenv("PAGINATION_MAX_LIMIT", "-3")
		if got := pagination.LoadFromEnv(); got != pagination.DefaultConfig() {
			t.Errorf("LoadFromEnv() = %+v", got)
		}
	})

	t.Run("default limit capped by max", func(t *testing.T) {
		t.Setenv("PAGINATION_DEFAULT_LIMIT", "50")
		t.Setenv("PAGINATION_MAX_LIMIT", "20")
		if got := pagination.LoadFromEnv(); got.DefaultLimit != 20 {
			t.Errorf("DefaultLimit = %d, want 20", got.DefaultLimit)
		}
	})
}

func TestParams_Validate(t *testing.T) {
	t.Parallel()
	cfg := pagination.DefaultConfig()

	tests := []struct {
		name    string
		params  pagination.Params
		wantErr bool
	}{
		{"valid", pagination.Params{Page: 1, Limit: 10}, false},
		{"max limit", pagination.Params{Page: 3, Limit: 25}, false},
		{"page zero", pagination.Params{Page: 0, Limit: 10}, true},
		{"limit zero", pagination.Params{Page: 1, Limit: 0}, true},
		{"limit over max", pagination.Params{Page: 1, Limit: 26}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if err := tt.params.Validate(cfg); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParams_WithDefaults(t *testing.T) {
	t.Parallel()
	cfg := pagination.DefaultConfig()

	tests := []struct {
		in   pagination.Params
		want pagination.Params
	}{
		{pagination.Params{}, pagination.Params{Page: 1, Limit: 10}},
		{pagination.Params{Page: -2, Limit: 5}, pagination.Params{Page: 1, Limit: 5}},
		{pagination.Params{Page: 4, Limit: 500}, pagination.Params{Page: 4, Limit: 25}},
	}
	for _, tt := range tests {
		if got := tt.in.WithDefaults(cfg); got != tt.want {
			t.Errorf("%+v.WithDefaults() = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestCalculateOffset(t *testing.T) {
	t.Parallel()
	tests := []struct{ page, limit, want int }{
		{1, 10, 0},
		{2, 10, 10},
		{3, 7, 14},
	}
	for _, tt := range tests {
		if got := pagination.CalculateOffset(tt.page, tt.limit); got != tt.want {
			t.Errorf("CalculateOffset(%d, %d) = %d, want %d", tt.page, tt.limit, got, tt.want)
		}
	}
}

func TestCalculateTotalPages(t *testing.T) {
	t.Parallel()
	tests := []struct {
		total int64
		limit int
		want  int
	}{
		{0, 10, 1},
		{9, 10, 1},
		{10, 10, 1},
		{11, 10, 2},
		{100, 25, 4},
		{5, 0, 1},
	}
	for _, tt := range tests {
		if got := pagination.CalculateTotalPages(tt.total, tt.limit); got != tt.want {
			t.Errorf("CalculateTotalPages(%d, %d) = %d, want %d", tt.total, tt.limit, got, tt.want)
		}
	}
}

func TestNewMetadata(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		params pagination.Params
		total  int64
		want   pagination.Metadata
	}{
		{
			name:   "first of three pages",
			params: pagination.Params{Page: 1, Limit: 10},
			total:  25,
			want:   pagination.Metadata{Total: 25, Page: 1, Limit: 10, TotalPages: 3, HasMore: true},
		},
		{
			name:   "last page",
			params: pagination.Params{Page: 3, Limit: 10},
			total:  25,
			want:   pagination.Metadata{Total: 25, Page: 3, Limit: 10, TotalPages: 3},
		},
		{
			name:   "exact fit",
			params: pagination.Params{Page: 2, Limit: 5},
			total:  10,
			want:   pagination.Metadata{Total: 10, Page: 2, Limit: 5, TotalPages: 2},
		},
		{
			name:   "empty",
			params: pagination.Params{Page: 1, Limit: 10},
			want:   pagination.Metadata{Page: 1, Limit: 10, TotalPages: 1},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := pagination.NewMetadata(tt.params, tt.total); got != tt.want {
				t.Errorf("NewMetadata() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestRecordPage(t *testing.T) {
	before := testutil.ToFloat64(pagination.PagesTotal.WithLabelValues("2-5"))
	pagination.RecordPage(3)
	pagination.RecordPage(5)
	if got := testutil.ToFloat64(pagination.PagesTotal.WithLabelValues("2-5")) - before; got != 2 {
		t.Errorf("pages recorded = %v, want 2", got)
	}
}
