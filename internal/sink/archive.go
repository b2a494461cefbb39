package sink

import (
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/jobclip/jobclip-cli/internal/model"
)

// archiveSchema is the fixed field layout of the local archive. Unlike the
// remote stores, the archive owns its schema, so it never changes between
// fetches.
var archiveSchema = []model.RawField{
	{Name: "Title", Kind: string(model.KindTitle), Required: true},
	{Name: "Company", Kind: string(model.KindText)},
	{Name: "Location", Kind: string(model.KindText)},
	{Name: "Salary", Kind: string(model.KindNumber)},
	{Name: "Requirements", Kind: string(model.KindText)},
	{Name: "Description", Kind: string(model.KindText)},
	{Name: "URL", Kind: string(model.KindURL)},
	{Name: "Applied", Kind: string(model.KindCheckbox)},
	{Name: "Date Posted", Kind: string(model.KindDate)},
}

// archiveRow flattens a record into the columns shared by both archive
// drivers.
type archiveRow struct {
	Title   string
	Payload []byte
}

func buildArchiveRow(rec Record) (archiveRow, error) {
	title, _ := rec.Values["Title"].(string)
	payload, err := json.Marshal(rec.Values)
	if err != nil {
		return archiveRow{}, eris.Wrap(err, "archive: marshal payload")
	}
	return archiveRow{Title: title, Payload: payload}, nil
}
