package sentence

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		line     string
		dialect  Dialect
		talker   string
		sentence string
		key      string
	}{
		{"$GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,*47", Talker, "GP", "GGA", "GGA"},
		{"$HEHDT,274.07,T*03", Talker, "HE", "HDT", "HDT"},
		{"!AIVDM,1,1,,B,177KQJ5000G?tO`K>RA1wUbN0TKH,0*5C", Talker, "AI", "VDM", "VDM"},
		{"$RATTM,01,1.5,45.0,T,10.0,90.0,T,0.5,2.0,N,TGT01,T,,,A*00", Talker, "RA", "TTM", "TTM"},
		{"$PTRK,12345,10.5,20.25,5.0,90.0,91.0,ALPHA*00", Talker, "P", "TRK", "PTRK"},
		{"$GPRMC", Talker, "GP", "RMC", "RMC"},
		{"$IIVTG*00", Talker, "II", "VTG", "VTG"},
		{"$XGGA,1", Talker, "X", "GGA", "GGA"},
		{`{"mmsi":123,"lat":10.0,"lon":20.0}`, JSON, "", "", ""},
		{"{", JSON, "", "", ""},
		{"244123456,52.1,4.3", Opaque, "", "", ""},
		{"", Opaque, "", "", ""},
		{"$", Opaque, "", "", ""},
		{"$GP", Opaque, "", "", ""},
		{"$gpgga,1,2", Opaque, "", "", ""},
		{"$GP1GA,1", Opaque, "", "", ""},
		{"!12345,x", Opaque, "", "", ""},
		{"hello world", Opaque, "", "", ""},
		{" $GPGGA,leading space", Opaque, "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			tag := Classify(tt.line)
			assert.Equal(t, tt.dialect, tag.Dialect)
			assert.Equal(t, tt.talker, tag.Talker)
			assert.Equal(t, tt.sentence, tag.Sentence)
			assert.Equal(t, tt.key, tag.Key())
		})
	}
}

func TestClassify_SentenceAtDocumentedOffset(t *testing.T) {
	for _, line := range []string{
		"$GPGGA,1", "$GNRMC,2", "$GPGLL,3", "$HCHDG,4", "!AIVDO,5", "$SDDBT,6",
	} {
		tag := Classify(line)
		assert.Equal(t, Talker, tag.Dialect, line)
		assert.Equal(t, line[3:6], tag.Sentence, line)
		assert.Equal(t, line[0], tag.Start, line)
	}
}

func TestClassify_Deterministic(t *testing.T) {
	line := "$GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,*47"
	first := Classify(line)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, Classify(line))
	}
}

func TestDialectString(t *testing.T) {
	assert.Equal(t, "talker", Talker.String())
	assert.Equal(t, "json", JSON.String())
	assert.Equal(t, "opaque", Opaque.String())
	assert.Equal(t, "opaque", Dialect(42).String())
}
