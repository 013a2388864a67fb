package cases

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApplyFieldMapping(t *testing.T) {
	layout := FileLayout{FieldMapping: map[string]string{"CASES_KEY": "studentId", "SURNAME": "surname"}}

	tests := []struct {
		name       string
		raw        RawRecord
		layout     FileLayout
		wantMapped bool
		want       Fields
	}{
		{
			name:       "mapped",
			raw:        RawRecord{"CASES_KEY": "S001", "SURNAME": "Nguyen", "EXTRA": "x"},
			layout:     layout,
			wantMapped: true,
			want:       Fields{"studentId": "S001", "surname": "Nguyen", "EXTRA": "x"},
		},
		{
			name:       "falls back to canonical name",
			raw:        RawRecord{"studentId": "S002", "SURNAME": "Smith"},
			layout:     layout,
			wantMapped: true,
			want:       Fields{"studentId": "S002", "surname": "Smith"},
		},
		{
			name: "pass through",
			raw:  RawRecord{"houseCode": "BLU"},
			want: Fields{"houseCode": "BLU"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := ApplyFieldMapping(tt.raw, tt.layout)
			_, isMapped := res.(Mapped)
			assert.Equal(t, tt.wantMapped, isMapped)
			assert.Equal(t, tt.want, res.Fields())
		})
	}
}

func TestApplyFieldMapping_copies(t *testing.T) {
	raw := RawRecord{"houseCode": "BLU"}
	fields := ApplyFieldMapping(raw, FileLayout{}).Fields()
	fields["houseCode"] = "RED"
	assert.Equal(t, "BLU", raw["houseCode"])
}
