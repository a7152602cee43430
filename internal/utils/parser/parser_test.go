package parser_test

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cardmarket/internal/utils/parser"
)

type listQuery struct {
	Limit           int     `query:"limit" default:"50"`
	IncludeInactive bool    `query:"include_inactive"`
	Owner           *string `query:"owner"`
	MinPrice        float64 `query:"min_price"`
	ignored         string
}

func parse(t *testing.T, target string) (listQuery, error) {
	t.Helper()
	var (
		q      listQuery
		perr   error
		called bool
	)
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		called = true
		perr = parser.ParseQuery(c, &q)
		return nil
	})
	_, err := app.Test(httptest.NewRequest("GET", target, nil))
	require.NoError(t, err)
	require.True(t, called)
	return q, perr
}

func TestParseQuery(t *testing.T) {
	q, err := parse(t, "/?limit=5&include_inactive=true&owner=u1&min_price=2.5")
	require.NoError(t, err)
	assert.Equal(t, 5, q.Limit)
	assert.True(t, q.IncludeInactive)
	require.NotNil(t, q.Owner)
	assert.Equal(t, "u1", *q.Owner)
	assert.Equal(t, 2.5, q.MinPrice)
	assert.Empty(t, q.ignored)
}

func TestParseQuery_Defaults(t *testing.T) {
	q, err := parse(t, "/")
	require.NoError(t, err)
	assert.Equal(t, 50, q.Limit)
	assert.Nil(t, q.Owner)
}

func TestParseQuery_BadValue(t *testing.T) {
	_, err := parse(t, "/?limit=lots")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "limit")
}

func TestParseQuery_RejectsNonStruct(t *testing.T) {
	app := fiber.New()
	var perr error
	app.Get("/", func(c *fiber.Ctx) error {
		var n int
		perr = parser.ParseQuery(c, &n)
		return nil
	})
	_, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Error(t, perr)
}
