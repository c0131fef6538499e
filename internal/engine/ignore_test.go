package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIgnored(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"System Volume Information", true},
		{"system volume information", true},
		{"$RECYCLE.BIN", true},
		{".DS_Store", true},
		{".ds_store", true},
		{".Spotlight-V100", true},
		{"lost+found", true},
		{"LOST+FOUND", true},
		{".Trashes", true},
		{".fseventsd", true},
		{".gvfs", true},
		{".localized", true},
		{"photos", false},
		{".DS_Store.bak", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Ignored(tt.name))
		})
	}
}
