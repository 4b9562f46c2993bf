package services

import (
	"errors"
	"net/smtp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"kpi_tracker/internal/config"
	"kpi_tracker/internal/models"
)

const seedYAML = `
kpis:
  - code: Revenue
    name: Revenue
    unit: EUR
    default_target: 100000
  - code: orders
    name: Orders
brands:
  - code: ACME
    name: Acme
    kpis:
      - code: revenue
        target: 120000
      - code: orders
`

func TestParseSeed(t *testing.T) {
	seed, err := ParseSeed(strings.NewReader(seedYAML))
	require.NoError(t, err)
	require.Len(t, seed.KPIs, 2)
	assert.Equal(t, "revenue", seed.KPIs[0].Code)
	require.NotNil(t, seed.KPIs[0].DefaultTarget)
	assert.Equal(t, 100000.0, *seed.KPIs[0].DefaultTarget)
	require.Len(t, seed.Brands, 1)
	assert.Equal(t, "acme", seed.Brands[0].Code)
	require.Len(t, seed.Brands[0].KPIs, 2)
	assert.Nil(t, seed.Brands[0].KPIs[1].Target)
}

func TestParseSeedRejects(t *testing.T) {
	tests := map[string]string{
		"unknown kpi in brand": "kpis: []\nbrands:\n  - code: a\n    name: A\n    kpis:\n      - code: nope\n",
		"duplicate kpi":        "kpis:\n  - {code: a, name: A}\n  - {code: A, name: B}\n",
		"missing name":         "kpis:\n  - {code: a}\n",
		"unknown field":        "kpis:\n  - {code: a, name: A, colour: red}\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseSeed(strings.NewReader(doc))
			assert.Error(t, err)
		})
	}
}

func TestCreateUserInputValidate(t *testing.T) {
	in := CreateUserInput{Email: "  Ana@Example.com ", Name: " Ana "}
	require.NoError(t, in.Validate())
	assert.Equal(t, "ana@example.com", in.Email)
	assert.Equal(t, "Ana", in.Name)
	assert.Equal(t, models.UserRoleUser, in.Role)

	bad := []CreateUserInput{
		{Email: "not-an-email"},
		{Email: "a@b.c", Role: "owner"},
		{Email: "a@b.c", Password: "123"},
	}
	for _, b := range bad {
		assert.ErrorIs(t, b.Validate(), ErrInvalidInput)
	}
}

func TestTranslate(t *testing.T) {
	assert.NoError(t, translate(nil, "x"))
	assert.ErrorIs(t, translate(gorm.ErrRecordNotFound, "brand"), ErrNotFound)
	assert.ErrorIs(t, translate(gorm.ErrDuplicatedKey, "brand"), ErrConflict)
	other := errors.New("conn reset")
	assert.ErrorIs(t, translate(other, "brand"), other)
}

func TestEmailService(t *testing.T) {
	cfg := config.SMTPConfig{Host: "smtp.example.com", Port: "587", User: "u", Password: "p", From: "kpi@example.com"}
	svc := NewEmailService(cfg)

	var gotAddr string
	var gotMsg []byte
	svc.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotMsg = addr, msg
		return nil
	}

	require.NoError(t, svc.SendEmail([]string{"a@example.com", "b@example.com"}, "Reminder", "Please enter values"))
	assert.Equal(t, "smtp.example.com:587", gotAddr)
	msg := string(gotMsg)
	assert.Contains(t, msg, "To: a@example.com, b@example.com\r\n")
	assert.Contains(t, msg, "Subject: Reminder\r\n")
	assert.True(t, strings.HasSuffix(msg, "\r\n\r\nPlease enter values\r\n"))

	assert.Error(t, svc.SendEmail(nil, "s", "b"))
	assert.Error(t, NewEmailService(config.SMTPConfig{}).SendEmail([]string{"a@example.com"}, "s", "b"))
}
