package leads

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/commercepilot-backend/internal/store/memory"
	pkgerrors "github.com/angelmondragon/commercepilot-backend/pkg/errors"
)

func TestCreateLead(t *testing.T) {
	svc, err := NewService(memory.New(), nil)
	require.NoError(t, err)

	company := "  Acme Goods "
	lead, err := svc.Create(context.Background(), CreateLeadRequest{Email: " buyer@acme.test ", Company: &company, Consent: true})
	require.NoError(t, err)
	assert.NotEmpty(t, lead.ID)
	assert.Equal(t, "buyer@acme.test", lead.Email)
	require.NotNil(t, lead.Company)
	assert.Equal(t, "Acme Goods", *lead.Company)
	assert.True(t, lead.Consent)
	assert.False(t, lead.CreatedAt.IsZero())

	dto := ToDTO(lead)
	assert.Equal(t, lead.ID, dto.ID)
}

func TestCreateLeadBlankCompanyDropped(t *testing.T) {
	svc, err := NewService(memory.New(), nil)
	require.NoError(t, err)

	blank := "   "
	lead, err := svc.Create(context.Background(), CreateLeadRequest{Email: "x@y.test", Company: &blank})
	require.NoError(t, err)
	assert.Nil(t, lead.Company)
}

func TestCreateLeadRequiresEmail(t *testing.T) {
	svc, err := NewService(memory.New(), nil)
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), CreateLeadRequest{Email: "  "})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestNewServiceRequiresStore(t *testing.T) {
	_, err := NewService(nil, nil)
	assert.Error(t, err)
}
