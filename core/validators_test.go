package core

import (
	"testing"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitValidators(t *testing.T) {
	validate := validator.New()
	_en := en.New()
	translator, _ := ut.New(_en, _en).GetTranslator("en")
	InitValidators(validate, translator)

	type req struct {
		ClassID string `json:"classId" validate:"required,notblank"`
	}

	tests := []struct {
		name    string
		data    req
		wantMsg string
	}{
		{name: "missing", data: req{}, wantMsg: "this field is required"},
		{name: "blank", data: req{ClassID: "   "}, wantMsg: "this field cannot be blank"},
		{name: "valid", data: req{ClassID: "abc"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validate.Struct(tt.data)
			if tt.wantMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			vErrs, ok := err.(validator.ValidationErrors)
			require.True(t, ok)
			assert.Equal(t, "classId", vErrs[0].Field())
			assert.Equal(t, tt.wantMsg, vErrs[0].Translate(translator))
		})
	}
}

func TestConfig_String(t *testing.T) {
	conf := NewTestConfig()
	conf.Database.Password = "db-pass"
	s := conf.String()
	assert.NotContains(t, s, "test_secret_key")
	assert.NotContains(t, s, "test-secret-key")
	assert.NotContains(t, s, "db-pass")
	assert.Contains(t, s, "rzp_test_key")
}
