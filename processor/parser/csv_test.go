package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/seatrack/contact"
	"github.com/c360/seatrack/errors"
)

func TestCSVParser(t *testing.T) {
	parser := NewCSVParser()
	assert.Equal(t, "csv", parser.Format())

	t.Run("position only", func(t *testing.T) {
		res, err := parser.Decode("244123456,52.1,4.3")
		require.NoError(t, err)
		require.Len(t, res.Records, 1)
		assert.Equal(t, int64(244123456), res.Records[0].ID)
		assert.Equal(t, contact.KindPosition, res.Records[0].Kind)
		assert.Equal(t, contact.Position{Lat: 52.1, Lon: 4.3}, res.Records[0].Position)
		assert.False(t, res.Records[0].HasHeading)
	})

	t.Run("all columns", func(t *testing.T) {
		res, err := parser.Decode(`244123456, 52.1, 4.3, 12, 87.5, 88, "NORDIC, STAR"`)
		require.NoError(t, err)
		require.Len(t, res.Records, 2)

		rec := res.Records[0]
		assert.Equal(t, 12.0, rec.SOG)
		assert.Equal(t, 87.5, rec.COG)
		assert.Equal(t, 88.0, rec.Heading)
		assert.Equal(t, "NORDIC, STAR", res.Records[1].Label)
	})

	t.Run("empty optional columns", func(t *testing.T) {
		res, err := parser.Decode("7,1,2,,,45")
		require.NoError(t, err)
		assert.Zero(t, res.Records[0].SOG)
		assert.Equal(t, contact.KindReport, res.Records[0].Kind)
		assert.Equal(t, contact.FieldSOG|contact.FieldCOG|contact.FieldROT, res.Records[0].Missing)
		assert.Equal(t, 45.0, res.Records[0].Heading)
	})

	t.Run("invalid lines", func(t *testing.T) {
		for _, line := range []string{
			"hello world",
			"1,2",
			"abc,1,2",
			"1,north,2",
			"1,95,2",
			`1,"2,3`,
		} {
			_, err := parser.Decode(line)
			require.Error(t, err, line)
			assert.True(t, errors.IsInvalid(err), line)
		}
	})

	t.Run("empty data", func(t *testing.T) {
		assert.ErrorIs(t, parser.Validate([]byte("  ")), ErrEmptyData)
		assert.NoError(t, parser.Validate([]byte("1,2,3")))
	})
}
