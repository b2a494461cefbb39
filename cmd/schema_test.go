package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/jobclip/jobclip-cli/internal/model"
)

func TestToDump(t *testing.T) {
	snap := &model.SchemaSnapshot{
		SinkID:      "notion",
		Fingerprint: "abc123",
		Fields: []model.FieldDefinition{
			{Name: "Title", Kind: model.KindTitle, Required: true},
			{Name: "Status", Kind: model.KindStatus, Options: []string{"Applied", "Offer Received"}},
			{Name: "Notes", Kind: model.KindText},
		},
		Warnings: []model.FieldWarning{
			{Field: "Attachments", Message: `unsupported kind "rollup" downgraded to text`},
		},
		FetchedAt: time.Now(),
		TTL:       30 * time.Minute,
	}

	d := toDump(snap)

	assert.Equal(t, "notion", d.Sink)
	assert.Equal(t, "abc123", d.Fingerprint)
	assert.Len(t, d.Fields, 3)
	assert.Equal(t, "title", d.Fields[0].Kind)
	assert.True(t, d.Fields[0].Required)
	assert.Equal(t, []string{"Applied", "Offer Received"}, d.Fields[1].Options)
	assert.Equal(t, []string{`Attachments: unsupported kind "rollup" downgraded to text`}, d.Warnings)
}
