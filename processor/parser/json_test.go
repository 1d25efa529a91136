package parser

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/seatrack/contact"
	"github.com/c360/seatrack/errors"
)

func TestJSONParser(t *testing.T) {
	parser := NewJSONParser()
	assert.Equal(t, "json", parser.Format())

	t.Run("position report", func(t *testing.T) {
		res, err := parser.Decode(`{"mmsi":123,"lat":10.0,"lon":20.0,"sog":4.5,"cog":180,"heading":179,"nav_status":1}`)
		require.NoError(t, err)
		require.Len(t, res.Records, 1)

		rec := res.Records[0]
		assert.Equal(t, int64(123), rec.ID)
		assert.Equal(t, contact.KindReport, rec.Kind)
		assert.Equal(t, contact.Position{Lat: 10, Lon: 20}, rec.Position)
		assert.Equal(t, 4.5, rec.SOG)
		assert.Equal(t, contact.FieldROT, rec.Missing)
		assert.True(t, rec.HasHeading)
		assert.Equal(t, "at anchor", rec.NavStatus)
	})

	t.Run("static fields add a descriptor record", func(t *testing.T) {
		res, err := parser.Decode(`{"id":9,"lat":1,"lon":2,"name":" ORCA ","callsign":"AB12","bow":30,"stern":5}`)
		require.NoError(t, err)
		require.Len(t, res.Records, 2)

		desc := res.Records[1]
		assert.Equal(t, contact.KindDescriptor, desc.Kind)
		assert.Equal(t, " ORCA ", desc.Label)
		require.NotNil(t, desc.Descriptor)
		assert.Equal(t, "AB12", desc.Descriptor.CallSign)
		assert.Equal(t, 35, desc.Descriptor.Length())
	})

	t.Run("name only", func(t *testing.T) {
		res, err := parser.Decode(`{"mmsi":9,"name":"ORCA"}`)
		require.NoError(t, err)
		require.Len(t, res.Records, 1)
		assert.Nil(t, res.Records[0].Descriptor)
	})

	t.Run("velocity only", func(t *testing.T) {
		res, err := parser.Decode(`{"mmsi":9,"sog":3,"heading":511}`)
		require.NoError(t, err)
		require.Len(t, res.Records, 1)
		assert.Equal(t, contact.KindVelocity, res.Records[0].Kind)
		assert.False(t, res.Records[0].HasHeading)
		assert.Equal(t, contact.FieldCOG|contact.FieldROT, res.Records[0].Missing)
	})

	t.Run("position only", func(t *testing.T) {
		res, err := parser.Decode(`{"mmsi":9,"lat":1,"lon":2,"nav_status":5}`)
		require.NoError(t, err)
		require.Len(t, res.Records, 1)
		assert.Equal(t, contact.KindPosition, res.Records[0].Kind)
		assert.Equal(t, contact.Position{Lat: 1, Lon: 2}, res.Records[0].Position)
		assert.Equal(t, "moored", res.Records[0].NavStatus)
	})

	t.Run("errors", func(t *testing.T) {
		for _, line := range []string{
			`{invalid json}`,
			`{"lat":1,"lon":2}`,
			`{"mmsi":9,"lat":1}`,
			`{"mmsi":9,"lat":100,"lon":2}`,
			`{"mmsi":9}`,
		} {
			_, err := parser.Decode(line)
			require.Error(t, err, line)
			assert.True(t, errors.IsInvalid(err), line)
		}
	})

	t.Run("empty data", func(t *testing.T) {
		err := parser.Validate([]byte{})
		assert.ErrorIs(t, err, ErrEmptyData)

		_, err = parser.Parse([]byte{})
		assert.ErrorIs(t, err, ErrEmptyData)
	})
}

func TestJSONParser_ParseBatch(t *testing.T) {
	parser := NewJSONParser()

	reports, err := parser.ParseBatch([]byte(`[
		{"mmsi":1,"lat":10,"lon":20,"elapsed_ms":60000,"destination":"OSLO"},
		{"mmsi":2,"lat":11,"lon":21}
	]`))
	require.NoError(t, err)
	require.Len(t, reports, 2)

	sum, err := reports[0].Summary()
	require.NoError(t, err)
	assert.Equal(t, int64(1), sum.ID)
	assert.Equal(t, 60*time.Second, sum.ReportedAge)
	require.NotNil(t, sum.Descriptor)
	assert.Equal(t, "OSLO", sum.Descriptor.Destination)

	sum, err = reports[1].Summary()
	require.NoError(t, err)
	assert.Nil(t, sum.Descriptor)

	_, err = parser.ParseBatch([]byte(`{"mmsi":1}`))
	assert.Error(t, err)
}

func TestReport_Summary(t *testing.T) {
	id := int64(5)
	_, err := Report{MMSI: &id}.Summary()
	assert.ErrorIs(t, err, ErrNoFields)

	_, err = Report{}.Summary()
	assert.ErrorIs(t, err, ErrMissingID)
}
