package adminreport

import (
	"testing"

	"github.com/jutuon/afrodite-backend-sub001/internal/identity"
	"github.com/stretchr/testify/assert"
)

func TestFromDocMapsFields(t *testing.T) {
	doc := reportDoc{Reporter: 1, Target: 2, Kind: string(ReportKindChatMessage), Content: "abuse", Done: true}
	r := fromDoc(doc)
	assert.Equal(t, identity.InternalAccountID(1), r.Reporter)
	assert.Equal(t, identity.InternalAccountID(2), r.Target)
	assert.Equal(t, ReportKindChatMessage, r.Kind)
	assert.True(t, r.Done)
}

func TestNewsFromDocMapsFields(t *testing.T) {
	editor := int64(7)
	doc := newsDoc{Title: "Update", Body: "New matching algorithm", CreatedBy: 3, EditedBy: &editor, Version: 2}
	item := newsFromDoc(doc)
	assert.Equal(t, "Update", item.Title)
	assert.Equal(t, identity.InternalAccountID(3), item.CreatedBy)
	assert.NotNil(t, item.EditedBy)
	assert.Equal(t, identity.InternalAccountID(7), *item.EditedBy)
	assert.Equal(t, int64(2), item.Version)
}

func TestNewsFromDocNilEditor(t *testing.T) {
	doc := newsDoc{Title: "Launch", Body: "We're live", CreatedBy: 1, Version: 1}
	item := newsFromDoc(doc)
	assert.Nil(t, item.EditedBy)
}
