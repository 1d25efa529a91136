package nmea

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/seatrack/contact"
	"github.com/c360/seatrack/errors"
)

func TestDecodeOwnPosition(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		lat, lon float64
		velocity bool
	}{
		{"GGA", "$GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,*47", 48.1173, 11.516667, false},
		{"RMC", "$GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W*6A", 48.1173, 11.516667, true},
		{"GLL", "$GPGLL,4916.45,N,12311.12,W,225444,A,A*5C", 49.274167, -123.185333, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := DecodeOwnPosition(tt.line)
			require.NoError(t, err)
			assert.Empty(t, res.Records)
			require.NotNil(t, res.OwnShip)
			require.NotNil(t, res.OwnShip.Position)
			assert.InDelta(t, tt.lat, res.OwnShip.Position.Lat, 1e-4)
			assert.InDelta(t, tt.lon, res.OwnShip.Position.Lon, 1e-4)
			assert.Nil(t, res.OwnShip.Heading)

			if tt.velocity {
				require.NotNil(t, res.OwnShip.Velocity)
				assert.Equal(t, 22.4, res.OwnShip.Velocity.SOG)
				assert.Equal(t, 84.4, res.OwnShip.Velocity.COG)
			} else {
				assert.Nil(t, res.OwnShip.Velocity)
			}
		})
	}
}

func TestDecodeOwnPosition_NoFix(t *testing.T) {
	for _, line := range []string{
		"$GPGGA,123519,4807.038,N,01131.000,E,0,00,,,M,,M,,*52",
		"$GPRMC,123519,V,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W*7D",
		"$GPGLL,4916.45,N,12311.12,W,225444,V,N*44",
	} {
		res, err := DecodeOwnPosition(line)
		require.NoError(t, err, line)
		assert.True(t, res.Empty(), line)
	}
}

func TestDecodeOwnPosition_Errors(t *testing.T) {
	tests := []struct {
		name string
		line string
		want error
	}{
		{"bad checksum", "$GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,*00", errors.ErrChecksumFailed},
		{"wrong sentence", "$GPGSV,1,1,00*79", errors.ErrUnsupportedMessage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeOwnPosition(tt.line)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
			assert.True(t, errors.IsInvalid(err))
		})
	}
}

func TestDecodeOwnPosition_Truncated(t *testing.T) {
	_, err := DecodeOwnPosition("$GPGGA")
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestDecodeOwnHeading(t *testing.T) {
	t.Run("HDT", func(t *testing.T) {
		res, err := DecodeOwnHeading("$HEHDT,274.07,T*19")
		require.NoError(t, err)
		require.NotNil(t, res.OwnShip)
		require.NotNil(t, res.OwnShip.Heading)
		assert.Equal(t, 274.07, *res.OwnShip.Heading)
		assert.Nil(t, res.OwnShip.Position)
	})

	t.Run("HDG applies deviation and variation", func(t *testing.T) {
		res, err := DecodeOwnHeading("$HCHDG,98.3,0.0,E,12.6,W*57")
		require.NoError(t, err)
		require.NotNil(t, res.OwnShip.Heading)
		assert.InDelta(t, 85.7, *res.OwnShip.Heading, 1e-9)
	})

	t.Run("VTG", func(t *testing.T) {
		res, err := DecodeOwnHeading("$GPVTG,054.7,T,034.4,M,005.5,N,010.2,K*48")
		require.NoError(t, err)
		require.NotNil(t, res.OwnShip.Velocity)
		assert.Equal(t, 5.5, res.OwnShip.Velocity.SOG)
		assert.Equal(t, 54.7, res.OwnShip.Velocity.COG)
		assert.Nil(t, res.OwnShip.Heading)
	})

	t.Run("wrong sentence", func(t *testing.T) {
		_, err := DecodeOwnHeading("$GPGSV,1,1,00*79")
		assert.True(t, errors.Is(err, errors.ErrUnsupportedMessage))
	})
}

func TestDecodeRadarTarget_TTM(t *testing.T) {
	res, err := DecodeRadarTarget("$RATTM,01,1.5,45.0,T,10.0,90.0,T,0.5,2.0,N,TGT01,T,,,A*54")
	require.NoError(t, err)
	require.Len(t, res.Records, 2)

	brg := res.Records[0]
	assert.Equal(t, contact.RadarIDBase+1, brg.ID)
	assert.Equal(t, contact.KindBearingRange, brg.Kind)
	assert.Equal(t, 45.0, brg.BearingDeg)
	assert.Equal(t, 1.5, brg.RangeNM)
	assert.False(t, brg.RelativeBearing)
	assert.Equal(t, "TGT01", brg.Label)

	vel := res.Records[1]
	assert.Equal(t, contact.KindVelocity, vel.Kind)
	assert.Equal(t, 10.0, vel.SOG)
	assert.Equal(t, 90.0, vel.COG)
}

func TestDecodeRadarTarget_RelativeWithoutVelocity(t *testing.T) {
	res, err := DecodeRadarTarget("$RATTM,02,2.0,90.0,R,,,T,,,N,,Q,,,A*13")
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.True(t, res.Records[0].RelativeBearing)
	assert.Equal(t, contact.RadarIDBase+2, res.Records[0].ID)
}

func TestDecodeRadarTarget_SingleLetterTalker(t *testing.T) {
	res, err := DecodeRadarTarget("$RTTM,05,1.5,45.0,T,,,T,,,N,,T,,,A*58")
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Equal(t, contact.RadarIDBase+5, res.Records[0].ID)
	assert.Equal(t, contact.KindBearingRange, res.Records[0].Kind)
	assert.Equal(t, 45.0, res.Records[0].BearingDeg)
}

func TestDecodeRadarTarget_LostTarget(t *testing.T) {
	res, err := DecodeRadarTarget("$RATTM,03,1.0,10.0,T,5.0,20.0,T,,,K,,L,,,A*30")
	require.NoError(t, err)
	assert.True(t, res.Empty())
}

func TestDecodeRadarTarget_TLL(t *testing.T) {
	res, err := DecodeRadarTarget("$RATLL,07,5130.000,N,00100.000,W,BUOY,123519,T,*1B")
	require.NoError(t, err)
	require.Len(t, res.Records, 1)

	rec := res.Records[0]
	assert.Equal(t, contact.RadarIDBase+7, rec.ID)
	assert.Equal(t, contact.KindPosition, rec.Kind)
	assert.InDelta(t, 51.5, rec.Position.Lat, 1e-9)
	assert.InDelta(t, -1.0, rec.Position.Lon, 1e-9)
	assert.Equal(t, "BUOY", rec.Label)
}

func TestDecodeRadarTarget_Errors(t *testing.T) {
	_, err := DecodeRadarTarget("$RATTM,04,abc,10.0,T,5.0,20.0,T,,,N,,T,,,A*65")
	assert.True(t, errors.Is(err, errors.ErrParsingFailed))

	_, err = DecodeRadarTarget("$RATTM,01,1.5,45.0,T,10.0,90.0,T,0.5,2.0,N,TGT01,T,,,A*00")
	assert.True(t, errors.Is(err, errors.ErrChecksumFailed))

	_, err = DecodeRadarTarget("$RATTM,x,1.5")
	assert.True(t, errors.Is(err, errors.ErrParsingFailed))
}

func TestDecodeProprietary(t *testing.T) {
	res, err := DecodeProprietary("$PTRK,12345,10.5,20.25,5.0,90.0,91.0,ALPHA*4F")
	require.NoError(t, err)
	require.Len(t, res.Records, 1)

	rec := res.Records[0]
	assert.Equal(t, int64(12345), rec.ID)
	assert.Equal(t, contact.KindReport, rec.Kind)
	assert.Equal(t, contact.Position{Lat: 10.5, Lon: 20.25}, rec.Position)
	assert.Equal(t, 5.0, rec.SOG)
	assert.Equal(t, 90.0, rec.COG)
	assert.True(t, rec.HasHeading)
	assert.Equal(t, 91.0, rec.Heading)
	assert.Equal(t, "ALPHA", rec.Label)
}

func TestDecodeProprietary_OptionalFields(t *testing.T) {
	res, err := DecodeProprietary("$PTRK,777,-33.9,151.2,,,,*15")
	require.NoError(t, err)
	rec := res.Records[0]
	assert.False(t, rec.HasHeading)
	assert.Zero(t, rec.SOG)
	assert.Empty(t, rec.Label)
}

func TestDecodeProprietary_Errors(t *testing.T) {
	_, err := DecodeProprietary("$PTRK,777,95.0,151.2,,,,*3D")
	assert.True(t, errors.Is(err, errors.ErrParsingFailed))

	_, err = DecodeProprietary("$PTRK,abc,1,2")
	assert.True(t, errors.Is(err, errors.ErrParsingFailed))

	_, err = DecodeProprietary("$PXYZ,1,2,3")
	assert.True(t, errors.Is(err, errors.ErrUnsupportedMessage))
}

func TestCoordinate(t *testing.T) {
	v, err := coordinate("4807.038", "N", 90)
	require.NoError(t, err)
	assert.InDelta(t, 48.1173, v, 1e-9)

	v, err = coordinate("12311.12", "W", 180)
	require.NoError(t, err)
	assert.InDelta(t, -123.185333, v, 1e-6)

	_, err = coordinate("9100.000", "N", 90)
	assert.Error(t, err)
	_, err = coordinate("4807.038", "Q", 90)
	assert.Error(t, err)
	_, err = coordinate("", "N", 90)
	assert.Error(t, err)
}
