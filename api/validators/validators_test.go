package validators

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/commercepilot-backend/pkg/errors"
)

type signup struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72,password"`
}

func decode(body string) (signup, error) {
	var dest signup
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	err := DecodeJSONBody(httptest.NewRecorder(), r, &dest)
	return dest, err
}

func TestDecodeJSONBodyAccepts(t *testing.T) {
	got, err := decode(`{"email":"a@x.com","password":"secret123"}`)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", got.Email)
}

func TestDecodeJSONBodyRejects(t *testing.T) {
	cases := map[string]string{
		"empty":         ``,
		"malformed":     `{"email":`,
		"unknown field": `{"email":"a@x.com","password":"secret123","admin":true}`,
		"trailing data": `{"email":"a@x.com","password":"secret123"}{}`,
		"bad email":     `{"email":"nope","password":"secret123"}`,
		"short":         `{"email":"a@x.com","password":"abc1"}`,
		"no digit":      `{"email":"a@x.com","password":"secretsecret"}`,
		"no letter":     `{"email":"a@x.com","password":"1234567890"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := decode(body)
			assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "got %v", err)
		})
	}
}

func TestValidationDetailsUseJSONNames(t *testing.T) {
	_, err := decode(`{"email":"","password":"secretsecret"}`)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	details, ok := typed.Details().(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "is required", details["email"])
	assert.Equal(t, "must contain a letter and a digit", details["password"])
}

func TestParseQueryInt(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/?days=30", nil)
	v, err := ParseQueryInt(r, "days", 7, 1, 90)
	require.NoError(t, err)
	assert.Equal(t, 30, v)

	v, err = ParseQueryInt(httptest.NewRequest(http.MethodGet, "/", nil), "days", 7, 1, 90)
	require.NoError(t, err)
	assert.Equal(t, 7, v)

	_, err = ParseQueryInt(httptest.NewRequest(http.MethodGet, "/?days=91", nil), "days", 7, 1, 90)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	_, err = ParseQueryInt(httptest.NewRequest(http.MethodGet, "/?days=x", nil), "days", 7, 1, 90)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestURLParamUUID(t *testing.T) {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", "not-a-uuid")
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r = r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))

	_, err := URLParamUUID(r, "id")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}
